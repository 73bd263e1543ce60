package domain

// Outcome представляет терминальное состояние прогона саги
type Outcome string

// Терминальные состояния саги
const (
	OutcomeSuccess             Outcome = "Success"
	OutcomeDryRun              Outcome = "DryRun"
	OutcomeCancelledByOperator Outcome = "CancelledByOperator"
	OutcomeAbortedOnEdgeCase   Outcome = "AbortedOnEdgeCase"
	OutcomeFailedPreCommit     Outcome = "FailedPreCommit"
	OutcomeFailedPostCommit    Outcome = "FailedPostCommit"
	OutcomeNotFound            Outcome = "NotFound"
	OutcomeContention          Outcome = "Contention"
)

// Коды завершения процесса для каждого исхода
const (
	ExitSuccess          = 0
	ExitUsage            = 1
	ExitCancelled        = 2
	ExitEdgeCase         = 3
	ExitFailedPreCommit  = 4
	ExitFailedPostCommit = 5
	ExitNotFound         = 6
	ExitContention       = 7
)

// MapOutcomeToExitCode возвращает стабильный код завершения для исхода
func MapOutcomeToExitCode(o Outcome) int {
	switch o {
	case OutcomeSuccess, OutcomeDryRun:
		return ExitSuccess
	case OutcomeCancelledByOperator:
		return ExitCancelled
	case OutcomeAbortedOnEdgeCase:
		return ExitEdgeCase
	case OutcomeFailedPreCommit:
		return ExitFailedPreCommit
	case OutcomeFailedPostCommit:
		return ExitFailedPostCommit
	case OutcomeNotFound:
		return ExitNotFound
	case OutcomeContention:
		return ExitContention
	default:
		return ExitUsage
	}
}
