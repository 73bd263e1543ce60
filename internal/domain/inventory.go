package domain

// Host представляет удаленную машину, принадлежащую команде
type Host struct {
	HostID   string `json:"host_id"`
	TeamID   string `json:"team_id"`
	HostName string `json:"host_name"`
	Address  string `json:"address"`
}

// Resource представляет инфраструктурную единицу на хосте
type Resource struct {
	ResourceID   string `json:"resource_id"`
	HostID       string `json:"host_id"`
	TeamID       string `json:"team_id"`
	Kind         string `json:"kind"`
	ResourceName string `json:"resource_name"`
}

// SubscriptionStatus представляет локальный статус подписки
type SubscriptionStatus string

// Возможные статусы подписки
const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription представляет биллинговую подписку команды
type Subscription struct {
	SubscriptionID string             `json:"subscription_id"`
	TeamID         string             `json:"team_id"`
	ProviderID     string             `json:"provider_subscription_id"`
	Status         SubscriptionStatus `json:"status"`
}

// IsActive возвращает true если подписка активна локально
func (s Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// TargetKind различает цели удаленного уничтожения
type TargetKind string

// Виды целей удаленного уничтожения
const (
	TargetResource TargetKind = "resource"
	TargetHost     TargetKind = "host"
)

// TeardownTarget описывает одну инструкцию удаленного уничтожения
type TeardownTarget struct {
	Kind         TargetKind `json:"kind"`
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	ResourceKind string     `json:"resource_kind,omitempty"`
	HostAddress  string     `json:"host_address"`
}

// Ref возвращает читаемую ссылку на цель для отчетов
func (t TeardownTarget) Ref() string {
	return string(t.Kind) + ":" + t.ID + "@" + t.HostAddress
}
