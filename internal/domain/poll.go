package domain

// PollState - состояние опроса транзакций для одного пользователя
type PollState int

const (
	PollIdle PollState = iota
	PollPolling
	PollChecking
)

func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollPolling:
		return "polling"
	case PollChecking:
		return "checking"
	default:
		return "unknown"
	}
}
