// Package swapchain owns the swapchain and the render targets built on it:
// image views, depth and multisample buffers, render passes and
// framebuffers. Manager sequences their lifetime, Chain does the Vulkan work.
package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/q2vk/qvk/config"
	"github.com/q2vk/qvk/device"
	"github.com/q2vk/qvk/vkerr"
)

type RenderTarget int

const (
	RenderTargetStandard RenderTarget = iota
	RenderTargetMSAA

	RenderTargetCount
)

func (t RenderTarget) String() string {
	switch t {
	case RenderTargetStandard:
		return "standard"
	case RenderTargetMSAA:
		return "msaa"
	}
	return "unknown"
}

// Printer is the engine console.
type Printer interface {
	Printf(format string, args ...any)
}

// Chain is the Vulkan implementation of Builder.
type Chain struct {
	ctx          *device.Context
	cfg          config.VkConfig
	out          Printer
	drawableSize func() (int, int)
	log          zerolog.Logger

	ext    khr_swapchain.Extension
	handle khr_swapchain.Swapchain

	Format      core1_0.Format
	ColorSpace  khr_surface.ColorSpace
	PresentMode khr_surface.PresentMode
	Extent      core1_0.Extent2D

	images []core1_0.Image
	views  []core1_0.ImageView

	depth     *device.Texture
	msaaDepth *device.Texture
	msaaColor *device.Texture

	renderPasses [RenderTargetCount]core1_0.RenderPass
	framebuffers [RenderTargetCount][]core1_0.Framebuffer
}

var _ Builder = (*Chain)(nil)

// NewChain prepares a chain for ctx. drawableSize reports the window's
// drawable size in pixels and is only consulted when the surface leaves the
// extent to the swapchain.
func NewChain(ctx *device.Context, cfg config.VkConfig, out Printer, drawableSize func() (int, int), log zerolog.Logger) *Chain {
	return &Chain{
		ctx:          ctx,
		cfg:          cfg,
		out:          out,
		drawableSize: drawableSize,
		log:          log,
	}
}

func (s *Chain) Handle() khr_swapchain.Swapchain { return s.handle }

func (s *Chain) Extension() khr_swapchain.Extension { return s.ext }

func (s *Chain) ImageCount() int { return len(s.images) }

func (s *Chain) RenderPass(t RenderTarget) core1_0.RenderPass { return s.renderPasses[t] }

// Framebuffer returns the framebuffer of target for the swapchain image at
// imageIndex.
func (s *Chain) Framebuffer(t RenderTarget, imageIndex int) (core1_0.Framebuffer, error) {
	framebuffers := s.framebuffers[t]
	if imageIndex < 0 || imageIndex >= len(framebuffers) {
		return nil, errors.AssertionFailedf("no %s framebuffer for image %d of %d", t, imageIndex, len(framebuffers))
	}
	return framebuffers[imageIndex], nil
}

// MSAAAvailable reports whether the device can multisample at all.
func (s *Chain) MSAAAvailable() bool {
	return s.ctx.MSAASamples != core1_0.Samples1
}

// ActiveTarget is the render target frames are drawn into.
func (s *Chain) ActiveTarget() RenderTarget {
	if s.cfg.MSAAEnabled() && s.MSAAAvailable() {
		return RenderTargetMSAA
	}
	return RenderTargetStandard
}

// Samples is the rasterization sample count pipelines built for target
// must use.
func (s *Chain) Samples(t RenderTarget) core1_0.SampleCountFlags {
	if t == RenderTargetMSAA {
		return s.ctx.MSAASamples
	}
	return core1_0.Samples1
}

func (s *Chain) Viewport() core1_0.Viewport {
	return core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(s.Extent.Width),
		Height:   float32(s.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

func (s *Chain) Scissor() core1_0.Rect2D {
	return core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: s.Extent,
	}
}

func (s *Chain) WaitIdle() error {
	return s.ctx.WaitIdle()
}

func (s *Chain) CreateSwapchain() error {
	support, err := s.ctx.QuerySwapchainSupport()
	if err != nil {
		return err
	}

	surfaceFormat := ChooseSurfaceFormat(support.Formats)
	presentMode := ChoosePresentMode(s.cfg.PresentMode, support.PresentModes)
	width, height := s.drawableSize()
	extent := ChooseExtent(support.Capabilities, width, height)
	imageCount := ChooseImageCount(support.Capabilities)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int

	families := s.ctx.Families
	if families.Graphics != families.Present {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, families.Graphics, families.Present)
	}

	if s.ext == nil {
		s.ext = khr_swapchain.CreateExtensionFromDevice(s.ctx.Device)
	}

	swapchain, res, err := s.ext.CreateSwapchain(s.ctx.Device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.ctx.Surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
		OldSwapchain:   s.handle,
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateSwapchainKHR")
	}

	// the old swapchain is retired once the new one exists
	if s.handle != nil {
		s.handle.Destroy(nil)
	}
	s.handle = swapchain

	s.images, res, err = swapchain.SwapchainImages()
	if err != nil {
		return vkerr.Wrap(res, err, "vkGetSwapchainImagesKHR")
	}

	s.Format = surfaceFormat.Format
	s.ColorSpace = surfaceFormat.ColorSpace
	s.PresentMode = presentMode
	s.Extent = extent

	s.out.Printf("...created Vulkan swapchain\n")
	s.log.Info().
		Int("width", extent.Width).
		Int("height", extent.Height).
		Int("images", len(s.images)).
		Stringer("format", s.Format).
		Stringer("present_mode", s.PresentMode).
		Msg("swapchain created")
	return nil
}

func (s *Chain) DestroySwapchain() {
	if s.handle != nil {
		s.handle.Destroy(nil)
		s.handle = nil
	}
	s.images = nil
}

func (s *Chain) CreateImageViews() error {
	for _, image := range s.images {
		view, err := s.ctx.CreateImageView(image, s.Format, core1_0.ImageAspectColor)
		if err != nil {
			return err
		}
		s.views = append(s.views, view)
	}
	return nil
}

func (s *Chain) DestroyImageViews() {
	for _, view := range s.views {
		view.Destroy(nil)
	}
	s.views = nil
}

// CreateDrawBuffers creates the depth buffer and, when the device can
// multisample, the multisampled depth and color buffers.
func (s *Chain) CreateDrawBuffers() error {
	var err error
	s.depth, err = s.ctx.CreateTexture(device.ImageOptions{
		Width:   s.Extent.Width,
		Height:  s.Extent.Height,
		Samples: core1_0.Samples1,
		Format:  s.ctx.DepthFormat,
		Usage:   core1_0.ImageUsageDepthStencilAttachment,
		Aspect:  core1_0.ImageAspectDepth,
	})
	if err != nil {
		return errors.Wrap(err, "depth buffer")
	}
	s.out.Printf("...created depth buffer\n")

	if !s.MSAAAvailable() {
		return nil
	}

	s.msaaDepth, err = s.ctx.CreateTexture(device.ImageOptions{
		Width:   s.Extent.Width,
		Height:  s.Extent.Height,
		Samples: s.ctx.MSAASamples,
		Format:  s.ctx.DepthFormat,
		Usage:   core1_0.ImageUsageDepthStencilAttachment,
		Aspect:  core1_0.ImageAspectDepth,
	})
	if err != nil {
		return errors.Wrap(err, "MSAA depth buffer")
	}
	s.out.Printf("...created MSAA depth buffer\n")

	s.msaaColor, err = s.ctx.CreateTexture(device.ImageOptions{
		Width:   s.Extent.Width,
		Height:  s.Extent.Height,
		Samples: s.ctx.MSAASamples,
		Format:  s.Format,
		Usage:   core1_0.ImageUsageTransientAttachment | core1_0.ImageUsageColorAttachment,
		Aspect:  core1_0.ImageAspectColor,
	})
	if err != nil {
		return errors.Wrap(err, "MSAA color buffer")
	}
	s.out.Printf("...created MSAA color buffer\n")
	return nil
}

func (s *Chain) DestroyDrawBuffers() {
	s.depth.Destroy()
	s.msaaDepth.Destroy()
	s.msaaColor.Destroy()
	s.depth, s.msaaDepth, s.msaaColor = nil, nil, nil
}

// CreateFramebuffers creates one framebuffer per swapchain image for every
// render target that has a render pass.
func (s *Chain) CreateFramebuffers() error {
	for t := RenderTarget(0); t < RenderTargetCount; t++ {
		renderPass := s.renderPasses[t]
		if renderPass == nil {
			continue
		}

		for _, view := range s.views {
			attachments := []core1_0.ImageView{view, s.depth.View}
			if t == RenderTargetMSAA {
				attachments = []core1_0.ImageView{s.msaaColor.View, s.msaaDepth.View, view}
			}

			framebuffer, res, err := s.ctx.Device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
				RenderPass:  renderPass,
				Layers:      1,
				Attachments: attachments,
				Width:       s.Extent.Width,
				Height:      s.Extent.Height,
			})
			if err != nil {
				return vkerr.Wrap(res, err, "vkCreateFramebuffer")
			}
			s.framebuffers[t] = append(s.framebuffers[t], framebuffer)
		}
	}
	return nil
}

func (s *Chain) DestroyFramebuffers() {
	for t := range s.framebuffers {
		for _, framebuffer := range s.framebuffers[t] {
			framebuffer.Destroy(nil)
		}
		s.framebuffers[t] = nil
	}
}
