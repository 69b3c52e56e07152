package swapchain

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/rs/zerolog"

	"github.com/q2vk/qvk/vkerr"
)

// recordingBuilder logs every call and fails the call named in failOn.
type recordingBuilder struct {
	calls  []string
	failOn string
}

func (b *recordingBuilder) call(name string) error {
	b.calls = append(b.calls, name)
	if name == b.failOn {
		return vkerr.Wrap(vkerr.ErrorOutOfDeviceMemory, nil, name)
	}
	return nil
}

func (b *recordingBuilder) WaitIdle() error           { return b.call("wait idle") }
func (b *recordingBuilder) CreateSwapchain() error    { return b.call("create swapchain") }
func (b *recordingBuilder) DestroySwapchain()         { b.call("destroy swapchain") }
func (b *recordingBuilder) CreateRenderPasses() error { return b.call("create render passes") }
func (b *recordingBuilder) DestroyRenderPasses()      { b.call("destroy render passes") }
func (b *recordingBuilder) CreateDrawBuffers() error  { return b.call("create draw buffers") }
func (b *recordingBuilder) DestroyDrawBuffers()       { b.call("destroy draw buffers") }
func (b *recordingBuilder) CreateImageViews() error   { return b.call("create image views") }
func (b *recordingBuilder) DestroyImageViews()        { b.call("destroy image views") }
func (b *recordingBuilder) CreateFramebuffers() error { return b.call("create framebuffers") }
func (b *recordingBuilder) DestroyFramebuffers()      { b.call("destroy framebuffers") }

func newManager() (*Manager, *recordingBuilder) {
	b := &recordingBuilder{}
	return NewManager(b, zerolog.Nop()), b
}

func TestCreate(t *testing.T) {
	c := qt.New(t)
	m, b := newManager()

	c.Assert(m.State(), qt.Equals, Absent)
	c.Assert(m.Create(), qt.IsNil)
	c.Assert(m.State(), qt.Equals, Valid)
	c.Assert(b.calls, qt.DeepEquals, []string{
		"create swapchain",
		"create render passes",
		"create draw buffers",
		"create image views",
		"create framebuffers",
	})
}

func TestCreateTwice(t *testing.T) {
	c := qt.New(t)
	m, _ := newManager()

	c.Assert(m.Create(), qt.IsNil)
	err := m.Create()
	c.Assert(vkerr.IsFatal(err), qt.IsTrue)
	c.Assert(m.State(), qt.Equals, Valid)
}

func TestCreateFailureUnwinds(t *testing.T) {
	c := qt.New(t)
	m, b := newManager()
	b.failOn = "create image views"

	err := m.Create()
	c.Assert(err, qt.ErrorMatches, "create image views: create image views: VK_ERROR_OUT_OF_DEVICE_MEMORY")
	c.Assert(vkerr.IsFatal(err), qt.IsFalse)
	c.Assert(m.State(), qt.Equals, Absent)
	c.Assert(b.calls[4:], qt.DeepEquals, []string{
		"destroy framebuffers",
		"destroy image views",
		"destroy draw buffers",
		"destroy render passes",
		"destroy swapchain",
	})
}

func TestMarkStale(t *testing.T) {
	c := qt.New(t)
	m, _ := newManager()

	m.MarkStale()
	c.Assert(m.State(), qt.Equals, Absent)

	c.Assert(m.Create(), qt.IsNil)
	m.MarkStale()
	c.Assert(m.State(), qt.Equals, Stale)
	m.MarkStale()
	c.Assert(m.State(), qt.Equals, Stale)
}

func TestRecreate(t *testing.T) {
	c := qt.New(t)
	m, b := newManager()

	c.Assert(m.Create(), qt.IsNil)
	m.MarkStale()
	b.calls = nil

	c.Assert(m.Recreate(), qt.IsNil)
	c.Assert(m.State(), qt.Equals, Valid)
	c.Assert(m.Recreations(), qt.Equals, 1)
	c.Assert(b.calls, qt.DeepEquals, []string{
		"wait idle",
		"destroy framebuffers",
		"destroy image views",
		"destroy draw buffers",
		"create swapchain",
		"create draw buffers",
		"create image views",
		"create framebuffers",
	})
}

func TestRecreateValid(t *testing.T) {
	c := qt.New(t)
	m, _ := newManager()

	c.Assert(m.Create(), qt.IsNil)
	c.Assert(m.Recreate(), qt.IsNil)
	c.Assert(m.State(), qt.Equals, Valid)
}

func TestRecreateAbsent(t *testing.T) {
	c := qt.New(t)
	m, b := newManager()

	err := m.Recreate()
	c.Assert(vkerr.IsFatal(err), qt.IsTrue)
	c.Assert(b.calls, qt.HasLen, 0)
	c.Assert(m.State(), qt.Equals, Absent)
}

func TestRecreateFailureIsFatal(t *testing.T) {
	c := qt.New(t)
	m, b := newManager()

	c.Assert(m.Create(), qt.IsNil)
	b.failOn = "create swapchain"

	err := m.Recreate()
	c.Assert(vkerr.IsFatal(err), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, "recreate swapchain: create swapchain: create swapchain: VK_ERROR_OUT_OF_DEVICE_MEMORY")

	code, ok := vkerr.Code(err)
	c.Assert(ok, qt.IsTrue)
	c.Assert(code, qt.Equals, vkerr.ErrorOutOfDeviceMemory)
	c.Assert(m.State(), qt.Equals, Stale)
}

func TestRecreateWaitIdleFailure(t *testing.T) {
	c := qt.New(t)
	m, b := newManager()

	c.Assert(m.Create(), qt.IsNil)
	b.failOn = "wait idle"
	b.calls = nil

	err := m.Recreate()
	c.Assert(vkerr.IsFatal(err), qt.IsTrue)
	c.Assert(b.calls, qt.DeepEquals, []string{"wait idle"})
}

func TestDestroy(t *testing.T) {
	c := qt.New(t)
	m, b := newManager()

	m.Destroy()
	c.Assert(b.calls, qt.HasLen, 0)

	c.Assert(m.Create(), qt.IsNil)
	b.calls = nil
	m.Destroy()
	c.Assert(m.State(), qt.Equals, Absent)
	c.Assert(b.calls, qt.DeepEquals, []string{
		"destroy framebuffers",
		"destroy image views",
		"destroy draw buffers",
		"destroy render passes",
		"destroy swapchain",
	})

	b.calls = nil
	m.Destroy()
	c.Assert(b.calls, qt.HasLen, 0)
}

func TestDestroyThenCreate(t *testing.T) {
	c := qt.New(t)
	m, _ := newManager()

	c.Assert(m.Create(), qt.IsNil)
	m.Destroy()
	c.Assert(m.Create(), qt.IsNil)
	c.Assert(m.State(), qt.Equals, Valid)
}

func TestStateString(t *testing.T) {
	c := qt.New(t)

	c.Assert(Absent.String(), qt.Equals, "absent")
	c.Assert(Valid.String(), qt.Equals, "valid")
	c.Assert(Stale.String(), qt.Equals, "stale")
	c.Assert(State(9).String(), qt.Equals, "unknown")
}
