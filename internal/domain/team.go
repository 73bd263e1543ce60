package domain

import "sort"

// Role представляет роль принципала в команде
type Role string

// Возможные роли участника команды
const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Team представляет группу принципалов (команду)
type Team struct {
	TeamID   string       `json:"team_id"`
	TeamName string       `json:"team_name"`
	Members  []TeamMember `json:"members"`
}

// Member возвращает участника команды по ID
func (t *Team) Member(principalID string) (TeamMember, bool) {
	for _, m := range t.Members {
		if m.PrincipalID == principalID {
			return m, true
		}
	}
	return TeamMember{}, false
}

// IsSoleOwnedBy возвращает true, если принципал владелец и единственный участник команды.
// Только такие команды (и все, что им принадлежит) удаляются полностью.
func (t *Team) IsSoleOwnedBy(principalID string) bool {
	if len(t.Members) != 1 {
		return false
	}
	m := t.Members[0]
	return m.PrincipalID == principalID && m.Role == RoleOwner
}

// OwnerCount возвращает количество владельцев команды
func (t *Team) OwnerCount() int {
	n := 0
	for _, m := range t.Members {
		if m.Role == RoleOwner {
			n++
		}
	}
	return n
}

// TransferCandidates возвращает активных участников, кроме указанного, в порядке
// приоритета передачи владения: сначала админы, затем по дате вступления
func (t *Team) TransferCandidates(excludeID string) []TeamMember {
	candidates := make([]TeamMember, 0, len(t.Members))
	for _, m := range t.Members {
		if m.PrincipalID == excludeID || !m.IsActive {
			continue
		}
		candidates = append(candidates, m)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ai, aj := candidates[i].Role == RoleAdmin, candidates[j].Role == RoleAdmin
		if ai != aj {
			return ai
		}
		return candidates[i].JoinedAt.Before(candidates[j].JoinedAt)
	})
	return candidates
}

// Disposition описывает, что сага делает с командой
type Disposition string

// Возможные решения по команде
const (
	DispositionDelete   Disposition = "delete"
	DispositionTransfer Disposition = "transfer"
	DispositionLeave    Disposition = "leave"
)

// TeamPlan содержит команду принципала и решение по ней
type TeamPlan struct {
	Team          Team           `json:"team"`
	Role          Role           `json:"role"`
	Disposition   Disposition    `json:"disposition"`
	Successor     string         `json:"successor,omitempty"`
	Note          string         `json:"note,omitempty"`
	Subscriptions []Subscription `json:"subscriptions"`
	ResourceCount int            `json:"resource_count"`
}

// EdgeCase описывает команду, которую сага не может разрешить автоматически
type EdgeCase struct {
	TeamID         string       `json:"team_id"`
	TeamName       string       `json:"team_name"`
	Members        []TeamMember `json:"members"`
	ResourceCount  int          `json:"resource_count"`
	SubscriptionID string       `json:"subscription_id"`
	Reason         string       `json:"reason"`
}
