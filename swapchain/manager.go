package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/q2vk/qvk/vkerr"
)

type State int

const (
	Absent State = iota
	Valid
	Stale
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Valid:
		return "valid"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// Builder creates and destroys the swapchain and everything that hangs off
// it. Every Destroy method must tolerate the resource not existing.
type Builder interface {
	WaitIdle() error

	// CreateSwapchain builds a new swapchain, handing the current one (if
	// any) to the driver as the old swapchain and then destroying it.
	CreateSwapchain() error
	DestroySwapchain()

	CreateRenderPasses() error
	DestroyRenderPasses()

	CreateDrawBuffers() error
	DestroyDrawBuffers()

	CreateImageViews() error
	DestroyImageViews()

	CreateFramebuffers() error
	DestroyFramebuffers()
}

// Manager drives a Builder through the absent, valid and stale states.
type Manager struct {
	b     Builder
	state State
	log   zerolog.Logger

	recreations int
}

func NewManager(b Builder, log zerolog.Logger) *Manager {
	return &Manager{b: b, log: log}
}

func (m *Manager) State() State { return m.state }

// Recreations counts successful recreations since Create.
func (m *Manager) Recreations() int { return m.recreations }

// Create takes the manager from absent to valid. When a step fails the
// steps already done are undone and the manager stays absent.
func (m *Manager) Create() error {
	if m.state != Absent {
		return errors.AssertionFailedf("create swapchain in state %s", m.state)
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"swapchain", m.b.CreateSwapchain},
		{"render passes", m.b.CreateRenderPasses},
		{"draw buffers", m.b.CreateDrawBuffers},
		{"image views", m.b.CreateImageViews},
		{"framebuffers", m.b.CreateFramebuffers},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			m.destroyAll()
			return errors.Wrapf(err, "create %s", step.name)
		}
	}

	m.state = Valid
	m.recreations = 0
	return nil
}

// MarkStale flags a valid swapchain for recreation. It does nothing in the
// other states.
func (m *Manager) MarkStale() {
	if m.state == Valid {
		m.state = Stale
	}
}

// Recreate rebuilds the swapchain and its dependents. Framebuffers, image
// views and draw buffers are destroyed first, then the swapchain is rebuilt
// and the dependents come back as draw buffers, image views, framebuffers.
// Render passes survive.
//
// Any failure leaves the renderer without a usable swapchain and is
// returned as a fatal error.
func (m *Manager) Recreate() error {
	if m.state == Absent {
		return errors.AssertionFailedf("recreate swapchain that was never created")
	}

	if err := m.b.WaitIdle(); err != nil {
		return vkerr.Fatal(err, "recreate swapchain")
	}

	m.b.DestroyFramebuffers()
	m.b.DestroyImageViews()
	m.b.DestroyDrawBuffers()
	m.state = Stale

	steps := []struct {
		name string
		fn   func() error
	}{
		{"swapchain", m.b.CreateSwapchain},
		{"draw buffers", m.b.CreateDrawBuffers},
		{"image views", m.b.CreateImageViews},
		{"framebuffers", m.b.CreateFramebuffers},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			m.log.Error().Err(err).Str("step", step.name).Msg("swapchain recreation failed")
			return vkerr.Fatal(errors.Wrapf(err, "create %s", step.name), "recreate swapchain")
		}
	}

	m.state = Valid
	m.recreations++
	m.log.Debug().Int("recreations", m.recreations).Msg("swapchain recreated")
	return nil
}

// Destroy releases everything and returns to absent. Destroying an absent
// manager is a no-op.
func (m *Manager) Destroy() {
	if m.state == Absent {
		return
	}
	m.destroyAll()
	m.state = Absent
}

func (m *Manager) destroyAll() {
	m.b.DestroyFramebuffers()
	m.b.DestroyImageViews()
	m.b.DestroyDrawBuffers()
	m.b.DestroyRenderPasses()
	m.b.DestroySwapchain()
}
