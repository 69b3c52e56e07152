package swapchain

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/rs/zerolog"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/q2vk/qvk/config"
	"github.com/q2vk/qvk/device"
	"github.com/q2vk/qvk/vkerr"
)

type discard struct{}

func (discard) Printf(string, ...any) {}

func newChain(msaa int, samples core1_0.SampleCountFlags) *Chain {
	ctx := &device.Context{MSAASamples: samples}
	return NewChain(ctx, config.VkConfig{MSAA: msaa}, discard{}, func() (int, int) { return 640, 480 }, zerolog.Nop())
}

func TestActiveTarget(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		name    string
		msaa    int
		samples core1_0.SampleCountFlags
		want    RenderTarget
	}{
		{"msaa off", 0, core1_0.Samples8, RenderTargetStandard},
		{"msaa one sample", 1, core1_0.Samples8, RenderTargetStandard},
		{"msaa on", 4, core1_0.Samples4, RenderTargetMSAA},
		{"device cannot multisample", 4, core1_0.Samples1, RenderTargetStandard},
	}
	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			c.Assert(newChain(test.msaa, test.samples).ActiveTarget(), qt.Equals, test.want)
		})
	}
}

func TestSamples(t *testing.T) {
	c := qt.New(t)
	s := newChain(4, core1_0.Samples4)

	c.Assert(s.Samples(RenderTargetStandard), qt.Equals, core1_0.Samples1)
	c.Assert(s.Samples(RenderTargetMSAA), qt.Equals, core1_0.Samples4)
	c.Assert(s.MSAAAvailable(), qt.IsTrue)
}

func TestViewportFollowsExtent(t *testing.T) {
	c := qt.New(t)
	s := newChain(0, core1_0.Samples1)
	s.Extent = core1_0.Extent2D{Width: 1280, Height: 720}

	c.Assert(s.Viewport(), qt.Equals, core1_0.Viewport{Width: 1280, Height: 720, MaxDepth: 1})
	c.Assert(s.Scissor(), qt.Equals, core1_0.Rect2D{Extent: core1_0.Extent2D{Width: 1280, Height: 720}})
}

func TestFramebufferOutOfRange(t *testing.T) {
	c := qt.New(t)
	s := newChain(0, core1_0.Samples1)

	_, err := s.Framebuffer(RenderTargetStandard, 0)
	c.Assert(err, qt.ErrorMatches, "no standard framebuffer for image 0 of 0")
	c.Assert(vkerr.IsFatal(err), qt.IsTrue)
}

func TestDestroyEmptyChain(t *testing.T) {
	s := newChain(4, core1_0.Samples4)

	s.DestroyFramebuffers()
	s.DestroyImageViews()
	s.DestroyDrawBuffers()
	s.DestroyRenderPasses()
	s.DestroySwapchain()
}

func TestRenderTargetString(t *testing.T) {
	c := qt.New(t)

	c.Assert(RenderTargetStandard.String(), qt.Equals, "standard")
	c.Assert(RenderTargetMSAA.String(), qt.Equals, "msaa")
	c.Assert(RenderTargetCount.String(), qt.Equals, "unknown")
}
