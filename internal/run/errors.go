package run

// Process exit codes. Distinct values let callers tell a failed threshold
// apart from a broken run.
const (
	ExitOK               = 0
	ExitConfigError      = 2
	ExitSchedulerFault   = 3
	ExitThresholdsFailed = 4
)

// ConfigError is an invalid run configuration, detected before any virtual
// user starts. Fatal.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// SchedulerFault is an unrecoverable scheduler failure during the run.
// Fatal, and distinct from a threshold failure.
type SchedulerFault struct {
	Err error
}

func (e *SchedulerFault) Error() string { return "scheduler fault: " + e.Err.Error() }
func (e *SchedulerFault) Unwrap() error { return e.Err }
