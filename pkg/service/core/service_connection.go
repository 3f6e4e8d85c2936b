package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/navikt/datatalk/pkg/errs"
	"github.com/navikt/datatalk/pkg/service"
)

// TestPhase is where the connection coordinator is in its test cycle.
type TestPhase int

const (
	PhaseIdle TestPhase = iota
	PhaseDirty
	PhaseTesting
	PhaseSucceeded
	PhaseFailed
)

func (p TestPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDirty:
		return "dirty"
	case PhaseTesting:
		return "testing"
	case PhaseSucceeded:
		return "tested_success"
	case PhaseFailed:
		return "tested_failure"
	}

	return "unknown"
}

// TestState is the single tagged state of the coordinator. Snapshot is only
// set in PhaseSucceeded and Message only in PhaseFailed.
type TestState struct {
	Phase    TestPhase
	Form     service.DescriptorForm
	Snapshot *service.SchemaSnapshot
	Message  string
}

// CanSubmit reports whether onboarding is allowed from this state.
func (s TestState) CanSubmit() bool {
	return s.Phase == PhaseSucceeded
}

// ConnectionCoordinator owns the descriptor being edited and the result of the
// last connection test for it. Any edit discards the result.
type ConnectionCoordinator struct {
	api service.ConnectionAPI
	log zerolog.Logger

	mu         sync.Mutex
	form       service.DescriptorForm
	phase      TestPhase
	tested     service.Descriptor
	snapshot   *service.SchemaSnapshot
	message    string
	generation uint64
}

func (c *ConnectionCoordinator) SetKind(kind service.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.form.Kind == kind {
		return
	}

	c.form = service.NewDescriptorForm(kind)
	c.invalidate()
}

func (c *ConnectionCoordinator) SetField(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.form.Fields[name]; ok && old == value {
		return
	}

	if c.form.Fields == nil {
		c.form = service.NewDescriptorForm(c.form.Kind)
	}

	c.form.Fields[name] = value
	c.invalidate()
}

// SetDescriptor replaces the whole form with the fields of d.
func (c *ConnectionCoordinator) SetDescriptor(d service.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	form := service.FormFromDescriptor(d)

	if c.phase != PhaseIdle {
		if current, err := service.BuildDescriptor(c.form); err == nil && service.SameDescriptor(current, d) {
			return
		}
	}

	c.form = form
	c.invalidate()
}

// invalidate must be called with the lock held.
func (c *ConnectionCoordinator) invalidate() {
	if c.phase == PhaseTesting {
		c.generation++
	}

	if c.phase != PhaseDirty {
		c.log.Debug().Str("state", PhaseDirty.String()).Str("kind", string(c.form.Kind)).Msg("connection_state")
	}

	c.phase = PhaseDirty
	c.tested = nil
	c.snapshot = nil
	c.message = ""
}

// Test validates the current form and runs a connection test for it. A
// failed connection is not an error; it is reported through the returned
// state. Errors are returned when the test could not be started or its
// result was superseded by an edit.
func (c *ConnectionCoordinator) Test(ctx context.Context) (TestState, error) {
	const op errs.Op = "ConnectionCoordinator.Test"

	c.mu.Lock()

	switch c.phase {
	case PhaseTesting:
		c.mu.Unlock()
		return TestState{}, errs.E(errs.Busy, op, "a connection test is already running")
	case PhaseIdle:
		c.mu.Unlock()
		return TestState{}, errs.E(errs.Invalid, op, "no data source has been described")
	}

	d, err := service.BuildDescriptor(c.form)
	if err != nil {
		c.mu.Unlock()
		return TestState{}, errs.E(op, err)
	}

	c.generation++
	gen := c.generation
	c.phase = PhaseTesting
	c.tested = d
	c.snapshot = nil
	c.message = ""
	c.mu.Unlock()

	c.log.Debug().Str("state", PhaseTesting.String()).Str("kind", string(d.Kind())).Msg("connection_state")

	snapshot, err := c.api.TestConnection(ctx, service.NewSchemaRequest(d))

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.log.Debug().Msg("dropping connection test result for a changed data source")
		return c.stateLocked(), errs.E(errs.Precondition, op, "the data source changed while it was being tested")
	}

	if err != nil {
		c.phase = PhaseFailed
		c.message = errs.Msg(err)
		c.log.Info().Str("state", c.phase.String()).Str("kind", string(d.Kind())).Str("message", c.message).Msg("connection_state")

		return c.stateLocked(), nil
	}

	c.phase = PhaseSucceeded
	c.snapshot = snapshot
	c.log.Info().Str("state", c.phase.String()).Str("kind", string(d.Kind())).Msg("connection_state")

	return c.stateLocked(), nil
}

// Authorize returns the snapshot of the last test if it succeeded for exactly
// the descriptor d, which must also be the descriptor currently edited.
func (c *ConnectionCoordinator) Authorize(d service.Descriptor) (*service.SchemaSnapshot, error) {
	const op errs.Op = "ConnectionCoordinator.Authorize"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseSucceeded || !service.SameDescriptor(c.tested, d) {
		return nil, errs.E(errs.Precondition, op, "test the connection before onboarding the table")
	}

	return c.snapshot, nil
}

// Descriptor builds the descriptor from the form as it is now.
func (c *ConnectionCoordinator) Descriptor() (service.Descriptor, error) {
	const op errs.Op = "ConnectionCoordinator.Descriptor"

	c.mu.Lock()
	defer c.mu.Unlock()

	d, err := service.BuildDescriptor(c.form)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return d, nil
}

// Reset clears the form, keeping the selected kind, and orphans any running
// test.
func (c *ConnectionCoordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.form = service.NewDescriptorForm(c.form.Kind)
	c.phase = PhaseIdle
	c.tested = nil
	c.snapshot = nil
	c.message = ""

	c.log.Debug().Str("state", PhaseIdle.String()).Msg("connection_state")
}

// ResetIf resets the coordinator only while it still holds the successful
// test of d. A form edited since then is left alone.
func (c *ConnectionCoordinator) ResetIf(d service.Descriptor) bool {
	c.mu.Lock()
	current := c.phase == PhaseSucceeded && service.SameDescriptor(c.tested, d)
	c.mu.Unlock()

	if !current {
		c.log.Debug().Msg("form changed during onboarding, keeping it")
		return false
	}

	c.Reset()

	return true
}

func (c *ConnectionCoordinator) State() TestState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stateLocked()
}

func (c *ConnectionCoordinator) stateLocked() TestState {
	return TestState{
		Phase:    c.phase,
		Form:     c.form.Clone(),
		Snapshot: c.snapshot,
		Message:  c.message,
	}
}

func NewConnectionCoordinator(api service.ConnectionAPI, kind service.Kind, log zerolog.Logger) *ConnectionCoordinator {
	return &ConnectionCoordinator{
		api:   api,
		log:   log,
		form:  service.NewDescriptorForm(kind),
		phase: PhaseIdle,
	}
}
