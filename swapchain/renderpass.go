package swapchain

import (
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/q2vk/qvk/vkerr"
)

// attachmentDependency orders the render pass after the previous frame's
// color and depth writes.
var attachmentDependency = core1_0.SubpassDependency{
	SrcSubpass: core1_0.SubpassExternal,
	DstSubpass: 0,

	SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
	SrcAccessMask: 0,

	DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
	DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
}

func (s *Chain) depthAttachment(samples core1_0.SampleCountFlags) core1_0.AttachmentDescription {
	return core1_0.AttachmentDescription{
		Format:         s.ctx.DepthFormat,
		Samples:        samples,
		LoadOp:         core1_0.AttachmentLoadOpClear,
		StoreOp:        core1_0.AttachmentStoreOpDontCare,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  core1_0.ImageLayoutUndefined,
		FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
	}
}

// CreateRenderPasses creates the single sampled render pass and, when the
// device can multisample, the multisampled one resolving into the
// swapchain image.
func (s *Chain) CreateRenderPasses() error {
	renderPass, res, err := s.ctx.Device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         s.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			s.depthAttachment(core1_0.Samples1),
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{attachmentDependency},
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateRenderPass")
	}
	s.renderPasses[RenderTargetStandard] = renderPass

	if !s.MSAAAvailable() {
		s.out.Printf("...created render pass\n")
		return nil
	}

	renderPass, res, err = s.ctx.Device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         s.Format,
				Samples:        s.ctx.MSAASamples,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
			},
			s.depthAttachment(s.ctx.MSAASamples),
			{
				Format:         s.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpDontCare,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				ResolveAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 2,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{attachmentDependency},
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateRenderPass")
	}
	s.renderPasses[RenderTargetMSAA] = renderPass

	s.out.Printf("...created render passes\n")
	return nil
}

func (s *Chain) DestroyRenderPasses() {
	for t, renderPass := range s.renderPasses {
		if renderPass != nil {
			renderPass.Destroy(nil)
			s.renderPasses[t] = nil
		}
	}
}
