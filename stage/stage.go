// Package stage implements the fixed, linear installation stage sequence
// and the state machine that advances over it. The machine is the only
// authority permitted to move the installation forward; it has no
// timers and no retries.
package stage

import "fmt"

// Stage is a closed, ordered enumeration of installation stages.
type Stage int

const (
	NotStarted Stage = iota
	ValidatingConfig
	PreparingSystem
	InstallingDependencies
	PartitioningDisk
	InstallingBase
	GeneratingFstab
	ConfiguringChroot
	Finalizing
	Completed
)

var names = map[Stage]string{
	NotStarted:             "not_started",
	ValidatingConfig:       "validating_config",
	PreparingSystem:        "preparing_system",
	InstallingDependencies: "installing_dependencies",
	PartitioningDisk:       "partitioning_disk",
	InstallingBase:         "installing_base",
	GeneratingFstab:        "generating_fstab",
	ConfiguringChroot:      "configuring_chroot",
	Finalizing:             "finalizing",
	Completed:              "completed",
}

func (s Stage) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// IsDestructive reports whether entering this stage requires the
// destructive-stage preconditions to have been satisfied.
func (s Stage) IsDestructive() bool {
	return s == PartitioningDisk
}

// Failure records why a stage did not complete.
type Failure struct {
	Stage Stage
	Cause error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", f.Stage, f.Cause)
}

// Status is the machine's own lifecycle state, distinct from the stage
// ordinal: a machine can be Running at any non-terminal Stage, or
// terminally Completed or Failed.
type Status int

const (
	Running Status = iota
	StatusCompleted
	StatusFailed
)

// ErrTerminal is returned when advancing a machine that has already
// reached Completed or Failed.
var ErrTerminal = fmt.Errorf("state machine is in a terminal state")

// ErrInvalidTransition is returned by Advance when the machine is
// running but its current stage has no successor.
var ErrInvalidTransition = fmt.Errorf("invalid state transition")

// Machine drives the Install Stage sequence forward. It is single-owner,
// single-threaded: callers are responsible for serializing access to it,
// exactly as the Installer Context does.
type Machine struct {
	current Stage
	status  Status
	failure *Failure
}

// NewMachine returns a machine positioned at NotStarted.
func NewMachine() *Machine {
	return &Machine{current: NotStarted, status: Running}
}

// Current returns the stage currently active (meaningful only while
// Status() == Running).
func (m *Machine) Current() Stage {
	return m.current
}

// Status returns the machine's terminal/non-terminal status.
func (m *Machine) Status() Status {
	return m.status
}

// Failure returns the recorded failure, or nil if the machine never
// failed.
func (m *Machine) Failure() *Failure {
	return m.failure
}

// Advance moves the machine to the immediate successor of the current
// stage. Advancing past Finalizing moves the machine to Completed.
// Advance fails if the machine is already terminal.
func (m *Machine) Advance() error {
	if m.status != Running {
		return ErrTerminal
	}

	if m.current == Finalizing {
		m.current = Completed
		m.status = StatusCompleted
		return nil
	}

	if m.current >= Completed {
		return ErrInvalidTransition
	}

	m.current++
	return nil
}

// Fail transitions the machine to Failed(current), recording cause.
// Fail on an already-terminal machine returns ErrTerminal.
func (m *Machine) Fail(cause error) error {
	if m.status != Running {
		return ErrTerminal
	}

	m.failure = &Failure{Stage: m.current, Cause: cause}
	m.status = StatusFailed
	return nil
}
