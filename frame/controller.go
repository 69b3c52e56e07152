// Package frame runs the per-frame acquire, record, submit and present
// sequence over two in-flight frame slots.
package frame

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v2/common"

	"github.com/q2vk/qvk/logging"
	"github.com/q2vk/qvk/vkerr"
)

const SlotCount = 2

// ErrSwapchainStale is returned by BeginFrame when the swapchain had to be
// rebuilt before an image could be acquired. The frame is skipped; callers
// should carry on with the next one.
var ErrSwapchainStale = errors.New("swapchain out of date, frame skipped")

// Backend issues the Vulkan calls for one frame slot.
type Backend interface {
	AcquireNextImage(slot int) (int, common.VkResult, error)
	WaitForFence(slot int) error
	ResetFence(slot int) error

	BeginCommandBuffer(slot int) error
	// BeginRenderPass begins the active render pass on the framebuffer of
	// imageIndex and sets viewport and scissor.
	BeginRenderPass(slot, imageIndex int) error
	EndRenderPass(slot int)
	EndCommandBuffer(slot int) error

	Submit(slot int) error
	Present(slot, imageIndex int) (common.VkResult, error)

	MarkSwapchainStale()
	RecreateSwapchain() error
}

type Stats struct {
	Frames  uint64
	Skipped uint64

	Last  time.Duration
	Worst time.Duration
	Total time.Duration
}

func (s Stats) Average() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Frames)
}

// Controller sequences frames. It is not safe for concurrent use.
type Controller struct {
	b   Backend
	log *logging.Log

	slot       int
	imageIndex int
	inFrame    bool
	started    time.Duration

	stats Stats
}

func NewController(b Backend, log *logging.Log) *Controller {
	return &Controller{b: b, log: log}
}

// Slot is the frame slot the current or next frame records into.
func (c *Controller) Slot() int { return c.slot }

// ImageIndex is the swapchain image acquired by the last BeginFrame.
func (c *Controller) ImageIndex() int { return c.imageIndex }

func (c *Controller) InFrame() bool { return c.inFrame }

func (c *Controller) Stats() Stats { return c.stats }

// BeginFrame acquires a swapchain image, waits for the slot to be free and
// starts recording into its command buffer inside the render pass.
func (c *Controller) BeginFrame() error {
	if c.inFrame {
		return errors.AssertionFailedf("begin frame while frame %d is still open", c.stats.Frames)
	}
	c.log.NewFrame(c.stats.Frames)
	start := hrtime.Now()

	imageIndex, res, acquireErr := c.b.AcquireNextImage(c.slot)
	if res == vkerr.ErrorOutOfDate {
		c.log.Warn().Int("slot", c.slot).Msg("Vulkan swapchain incompatible after vkAcquireNextImageKHR - rebuilding!")
		c.b.MarkSwapchainStale()
		if err := c.b.RecreateSwapchain(); err != nil {
			return err
		}
		c.stats.Skipped++
		return ErrSwapchainStale
	}

	if err := c.b.WaitForFence(c.slot); err != nil {
		return vkerr.Fatal(err, "begin frame")
	}
	if err := c.b.ResetFence(c.slot); err != nil {
		return vkerr.Fatal(err, "begin frame")
	}
	// Only a submit signals the fence again, so every failure from here
	// until Submit is fatal.

	if acquireErr != nil || (res != vkerr.Success && res != vkerr.Suboptimal) {
		return vkerr.Fatal(vkerr.Wrap(res, acquireErr, "vkAcquireNextImageKHR"), "begin frame")
	}

	if err := c.b.BeginCommandBuffer(c.slot); err != nil {
		return vkerr.Fatal(err, "begin frame")
	}
	if err := c.b.BeginRenderPass(c.slot, imageIndex); err != nil {
		return vkerr.Fatal(err, "begin frame")
	}

	c.imageIndex = imageIndex
	c.inFrame = true
	c.started = start
	return nil
}

// EndFrame closes the render pass, submits the slot's command buffer and
// presents. An out of date or suboptimal present rebuilds the swapchain. The
// present result is returned and the slot always advances. A failure before
// the submit went through is fatal, since the slot's fence stays unsignalled.
func (c *Controller) EndFrame() (common.VkResult, error) {
	if !c.inFrame {
		return vkerr.Success, errors.AssertionFailedf("end frame without begin frame")
	}
	c.inFrame = false

	slot := c.slot
	defer func() {
		c.slot = (c.slot + 1) % SlotCount
	}()

	c.b.EndRenderPass(slot)
	if err := c.b.EndCommandBuffer(slot); err != nil {
		return vkerr.Success, vkerr.Fatal(err, "end frame")
	}
	if err := c.b.Submit(slot); err != nil {
		return vkerr.Success, vkerr.Fatal(err, "end frame")
	}

	res, err := c.b.Present(slot, c.imageIndex)
	c.record(hrtime.Since(c.started))

	if res == vkerr.ErrorOutOfDate || res == vkerr.Suboptimal {
		c.log.Warn().Str("result", vkerr.String(res)).Msg("Vulkan swapchain out of date/suboptimal after vkQueuePresentKHR - rebuilding!")
		c.b.MarkSwapchainStale()
		if err := c.b.RecreateSwapchain(); err != nil {
			return res, err
		}
		return res, nil
	}
	if err != nil {
		return res, vkerr.Wrap(res, err, "vkQueuePresentKHR")
	}
	return res, nil
}

func (c *Controller) record(elapsed time.Duration) {
	c.stats.Frames++
	c.stats.Last = elapsed
	c.stats.Total += elapsed
	if elapsed > c.stats.Worst {
		c.stats.Worst = elapsed
	}
}
