package domain

// Plan содержит снимок всего, что сага удалит, вычисленный на шаге Overview.
// План только читается последующими шагами.
type Plan struct {
	Principal     Principal      `json:"principal"`
	Teams         []TeamPlan     `json:"teams"`
	Hosts         []Host         `json:"hosts"`
	Resources     []Resource     `json:"resources"`
	Subscriptions []Subscription `json:"subscriptions"`
	EdgeCases     []EdgeCase     `json:"edge_cases,omitempty"`

	// ForeignResources - ресурсы команд вне области удаления, размещенные
	// на хостах из области удаления
	ForeignResources []Resource `json:"foreign_resources,omitempty"`
}

// TeamsWith возвращает команды с указанным решением
func (p *Plan) TeamsWith(d Disposition) []TeamPlan {
	var out []TeamPlan
	for _, t := range p.Teams {
		if t.Disposition == d {
			out = append(out, t)
		}
	}
	return out
}

// HostAddress возвращает адрес хоста из плана
func (p *Plan) HostAddress(hostID string) string {
	for _, h := range p.Hosts {
		if h.HostID == hostID {
			return h.Address
		}
	}
	return ""
}

// ActiveSubscriptions возвращает подписки удаляемых команд, активные локально
func (p *Plan) ActiveSubscriptions() []Subscription {
	var out []Subscription
	for _, s := range p.Subscriptions {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// HostTeam возвращает команду, которой принадлежит хост из плана
func (p *Plan) HostTeam(hostID string) string {
	for _, h := range p.Hosts {
		if h.HostID == hostID {
			return h.TeamID
		}
	}
	return ""
}
