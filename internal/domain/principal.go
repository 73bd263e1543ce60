package domain

import "time"

// Principal представляет учетную запись, которую удаляет сага
type Principal struct {
	PrincipalID string    `json:"principal_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	IsActive    bool      `json:"is_active"`
	IsOperator  bool      `json:"is_operator"`
	CreatedAt   time.Time `json:"created_at"`
}

// TeamMember представляет участника команды с его ролью
type TeamMember struct {
	PrincipalID string    `json:"principal_id"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"is_active"`
	JoinedAt    time.Time `json:"joined_at"`
}
