package domain

import "encoding/json"

// PhaseName представляет имя шага саги
type PhaseName string

// Шаги саги в порядке выполнения
const (
	PhaseOverview            PhaseName = "Overview"
	PhaseResourceTeardown    PhaseName = "ResourceTeardown"
	PhaseServerTeardown      PhaseName = "ServerTeardown"
	PhaseTeamReconciliation  PhaseName = "TeamReconciliation"
	PhasePrincipalPurge      PhaseName = "PrincipalPurge"
	PhaseBillingCancellation PhaseName = "BillingCancellation"
)

// PhaseOrder фиксирует порядок шагов
var PhaseOrder = [...]PhaseName{
	PhaseOverview,
	PhaseResourceTeardown,
	PhaseServerTeardown,
	PhaseTeamReconciliation,
	PhasePrincipalPurge,
	PhaseBillingCancellation,
}

// Transactional возвращает true для шагов внутри транзакционной единицы
func (p PhaseName) Transactional() bool {
	switch p {
	case PhaseResourceTeardown, PhaseServerTeardown, PhaseTeamReconciliation, PhasePrincipalPurge:
		return true
	default:
		return false
	}
}

func phaseIndex(p PhaseName) int {
	for i, name := range PhaseOrder {
		if name == p {
			return i
		}
	}
	return -1
}

// PhaseLedger хранит отметки о завершении шагов и статус коммита.
// Значение неизменяемо: With и Commit возвращают новую копию.
type PhaseLedger struct {
	done      [len(PhaseOrder)]bool
	committed bool
}

// With возвращает копию журнала с обновленной отметкой шага
func (l PhaseLedger) With(p PhaseName, done bool) PhaseLedger {
	if i := phaseIndex(p); i >= 0 {
		l.done[i] = done
	}
	return l
}

// Commit возвращает копию журнала с отметкой о коммите
func (l PhaseLedger) Commit() PhaseLedger {
	l.committed = true
	return l
}

// Done возвращает отметку шага
func (l PhaseLedger) Done(p PhaseName) bool {
	i := phaseIndex(p)
	return i >= 0 && l.done[i]
}

// Committed возвращает true если транзакционная единица закоммичена
func (l PhaseLedger) Committed() bool {
	return l.committed
}

// LedgerEntry представляет одну строку журнала
type LedgerEntry struct {
	Phase PhaseName `json:"phase"`
	Done  bool      `json:"done"`
}

// Entries возвращает строки журнала в порядке выполнения шагов
func (l PhaseLedger) Entries() []LedgerEntry {
	entries := make([]LedgerEntry, len(PhaseOrder))
	for i, p := range PhaseOrder {
		entries[i] = LedgerEntry{Phase: p, Done: l.done[i]}
	}
	return entries
}

// MarshalJSON сериализует журнал для API
func (l PhaseLedger) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Phases    []LedgerEntry `json:"phases"`
		Committed bool          `json:"committed"`
	}{
		Phases:    l.Entries(),
		Committed: l.committed,
	})
}

// UnmarshalJSON восстанавливает журнал из ответа API
func (l *PhaseLedger) UnmarshalJSON(data []byte) error {
	var raw struct {
		Phases    []LedgerEntry `json:"phases"`
		Committed bool          `json:"committed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out PhaseLedger
	for _, e := range raw.Phases {
		out = out.With(e.Phase, e.Done)
	}
	out.committed = raw.Committed
	*l = out
	return nil
}
