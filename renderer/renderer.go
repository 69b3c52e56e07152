// Package renderer holds the process wide Vulkan state and exposes the
// engine facing entry points: Init, BeginFrame, DrawConsole, EndFrame,
// Resize and Shutdown.
package renderer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/q2vk/qvk/config"
	"github.com/q2vk/qvk/console"
	"github.com/q2vk/qvk/device"
	"github.com/q2vk/qvk/frame"
	"github.com/q2vk/qvk/logging"
	"github.com/q2vk/qvk/swapchain"
	"github.com/q2vk/qvk/vkerr"
)

// Hooks is what the engine provides to the renderer.
type Hooks interface {
	device.Host

	// Gamedir is the directory shaders and vk.log live under.
	Gamedir() string
	// DrawableSize is the window's drawable area in pixels.
	DrawableSize() (int, int)
}

type Renderer struct {
	hooks Hooks
	cfg   config.VkConfig
	log   *logging.Log

	ctx   *device.Context
	slots *frame.Slots

	graphicsPool core1_0.CommandPool
	transferPool core1_0.CommandPool

	chain     *swapchain.Chain
	swapchain *swapchain.Manager

	commandBuffers []core1_0.CommandBuffer
	console        *console.Pipeline

	frames *frame.Controller
}

type initStep struct {
	name string
	fn   func() error
}

// Init brings up everything the renderer needs. When a step fails the steps
// already done are torn down again.
func Init(loader core.Loader, hooks Hooks, cfg config.VkConfig, log *logging.Log) (*Renderer, error) {
	r := &Renderer{hooks: hooks, cfg: cfg, log: log}

	err := r.run([]initStep{
		{"device", func() error { return r.createDevice(loader) }},
		{"synchronization objects", r.createSlots},
		{"command pools", r.createCommandPools},
		{"swapchain", r.createSwapchain},
		{"command buffers", r.createCommandBuffers},
		{"console pipeline", r.createConsole},
	})
	if err != nil {
		r.Shutdown()
		return nil, err
	}

	r.frames = frame.NewController(&frame.VulkanBackend{
		Device:         r.ctx.Device,
		GraphicsQueue:  r.ctx.GraphicsQueue,
		PresentQueue:   r.ctx.PresentQueue,
		Chain:          r.chain,
		Swapchain:      r.swapchain,
		Slots:          r.slots,
		CommandBuffers: r.commandBuffers,
	}, log)

	log.Info().
		Str("target", r.chain.ActiveTarget().String()).
		Int("samples", device.SampleCount(r.chain.Samples(r.chain.ActiveTarget()))).
		Msg("renderer ready")
	return r, nil
}

func (r *Renderer) run(steps []initStep) error {
	for _, step := range steps {
		if err := step.fn(); err != nil {
			r.log.Error().Err(err).Str("step", step.name).Msg("init failed")
			return errors.Wrapf(err, "init %s", step.name)
		}
		r.log.Debug().Str("step", step.name).Msg("init step done")
	}
	return nil
}

func (r *Renderer) createDevice(loader core.Loader) error {
	var err error
	r.ctx, err = device.New(loader, r.hooks, r.cfg, r.log.Logger)
	return err
}

func (r *Renderer) createSlots() error {
	var err error
	r.slots, err = frame.CreateSlots(r.ctx.Device)
	if err != nil {
		return err
	}
	r.hooks.Printf("...created synchronization objects\n")
	return nil
}

func (r *Renderer) createCommandPool(family int) (core1_0.CommandPool, error) {
	pool, res, err := r.ctx.Device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: family,
	})
	if err != nil {
		return nil, vkerr.Wrap(res, err, "vkCreateCommandPool")
	}
	return pool, nil
}

func (r *Renderer) createCommandPools() error {
	var err error
	r.graphicsPool, err = r.createCommandPool(r.ctx.Families.Graphics)
	if err != nil {
		return err
	}
	r.transferPool, err = r.createCommandPool(r.ctx.Families.Transfer)
	if err != nil {
		return err
	}
	r.hooks.Printf("...created command pools\n")
	return nil
}

func (r *Renderer) createSwapchain() error {
	r.chain = swapchain.NewChain(r.ctx, r.cfg, r.hooks, r.hooks.DrawableSize, r.log.Logger)
	r.swapchain = swapchain.NewManager(r.chain, r.log.Logger)
	return r.swapchain.Create()
}

func (r *Renderer) createCommandBuffers() error {
	var err error
	r.commandBuffers, err = frame.AllocateCommandBuffers(r.ctx.Device, r.graphicsPool)
	if err != nil {
		return err
	}
	r.hooks.Printf("...created command buffers\n")
	return nil
}

func (r *Renderer) createConsole() error {
	shaders, err := console.LoadShaders(context.Background(), console.ShaderDir(r.hooks.Gamedir()))
	if err != nil {
		return err
	}

	target := r.chain.ActiveTarget()
	r.console, err = console.New(r.ctx, console.Options{
		TransferPool: r.transferPool,
		RenderPass:   r.chain.RenderPass(target),
		Samples:      r.chain.Samples(target),
		Viewport:     r.chain.Viewport(),
		Scissor:      r.chain.Scissor(),
		Shaders:      shaders,
	})
	if err != nil {
		return err
	}
	r.hooks.Printf("...created console pipeline\n")
	return nil
}

// BeginFrame starts a frame. frame.ErrSwapchainStale means the swapchain was
// rebuilt instead and the frame should be skipped.
func (r *Renderer) BeginFrame() error {
	if r.frames == nil {
		return errors.AssertionFailedf("begin frame before init")
	}
	return r.frames.BeginFrame()
}

// EndFrame submits and presents the frame and returns the present result.
func (r *Renderer) EndFrame() (common.VkResult, error) {
	if r.frames == nil {
		return vkerr.Success, errors.AssertionFailedf("end frame before init")
	}
	return r.frames.EndFrame()
}

// DrawConsole records the console overlay into the current frame.
func (r *Renderer) DrawConsole(transform, color mgl32.Vec4) error {
	if r.frames == nil || !r.frames.InFrame() {
		return errors.AssertionFailedf("draw console outside a frame")
	}
	slot := r.frames.Slot()
	return r.console.Draw(r.commandBuffers[slot], slot, transform, color)
}

// Resize rebuilds the swapchain for a new window size. It must be called
// between frames.
func (r *Renderer) Resize() error {
	if r.frames == nil {
		return errors.AssertionFailedf("resize before init")
	}
	if r.frames.InFrame() {
		return errors.AssertionFailedf("resize inside a frame")
	}
	r.swapchain.MarkStale()
	return r.swapchain.Recreate()
}

func (r *Renderer) Stats() frame.Stats {
	if r.frames == nil {
		return frame.Stats{}
	}
	return r.frames.Stats()
}

// Shutdown waits for the device to go idle and destroys everything in the
// reverse order of Init. It copes with a partial Init and with being called
// twice.
func (r *Renderer) Shutdown() {
	if r.ctx != nil {
		if err := r.ctx.WaitIdle(); err != nil {
			r.log.Error().Err(err).Msg("wait idle before shutdown")
		}
	}

	if r.frames != nil {
		stats := r.frames.Stats()
		r.log.Info().
			Uint64("frames", stats.Frames).
			Uint64("skipped", stats.Skipped).
			Dur("avg", stats.Average()).
			Dur("worst", stats.Worst).
			Msg("renderer shutting down")
		r.frames = nil
	}

	r.console.Destroy()
	r.console = nil

	if len(r.commandBuffers) > 0 {
		r.ctx.Device.FreeCommandBuffers(r.commandBuffers)
		r.commandBuffers = nil
	}

	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
		r.chain = nil
	}

	if r.transferPool != nil {
		r.transferPool.Destroy(nil)
		r.transferPool = nil
	}
	if r.graphicsPool != nil {
		r.graphicsPool.Destroy(nil)
		r.graphicsPool = nil
	}

	r.slots.Destroy()
	r.slots = nil

	if r.ctx != nil {
		r.ctx.Destroy()
		r.ctx = nil
	}
}
