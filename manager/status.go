package manager

// RunningStatus is what the worker is doing right now.
type RunningStatus string

const (
	// Idle means no record is executing and the worker may pick up work.
	Idle RunningStatus = "IDLE"
	// Processing means a record is executing.
	Processing RunningStatus = "PROCESSING"
	// Paused means the worker is idle and will not start ENQUEUED records.
	Paused RunningStatus = "PAUSED"
)

// ErrorStatus aggregates the outcome of every execution since the manager
// was created. It only moves up: OK, WARNING, ERROR.
type ErrorStatus string

const (
	OK      ErrorStatus = "OK"
	Warning ErrorStatus = "WARNING"
	Error   ErrorStatus = "ERROR"
)

func (s ErrorStatus) rank() int {
	switch s {
	case Warning:
		return 1
	case Error:
		return 2
	}
	return 0
}

// raise returns the more severe of s and to.
func (s ErrorStatus) raise(to ErrorStatus) ErrorStatus {
	if to.rank() > s.rank() {
		return to
	}
	return s
}
