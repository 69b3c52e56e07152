package frame

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/q2vk/qvk/swapchain"
	"github.com/q2vk/qvk/vkerr"
)

// VulkanBackend is the Backend that talks to the driver.
type VulkanBackend struct {
	Device        core1_0.Device
	GraphicsQueue core1_0.Queue
	PresentQueue  core1_0.Queue

	Chain     *swapchain.Chain
	Swapchain *swapchain.Manager

	Slots          *Slots
	CommandBuffers []core1_0.CommandBuffer
}

var _ Backend = (*VulkanBackend)(nil)

func (v *VulkanBackend) AcquireNextImage(slot int) (int, common.VkResult, error) {
	return v.Chain.Handle().AcquireNextImage(common.NoTimeout, v.Slots.ImageAvailable[slot], nil)
}

func (v *VulkanBackend) WaitForFence(slot int) error {
	res, err := v.Device.WaitForFences(true, common.NoTimeout, []core1_0.Fence{v.Slots.InFlight[slot]})
	return vkerr.Wrap(res, err, "vkWaitForFences")
}

func (v *VulkanBackend) ResetFence(slot int) error {
	res, err := v.Device.ResetFences([]core1_0.Fence{v.Slots.InFlight[slot]})
	return vkerr.Wrap(res, err, "vkResetFences")
}

func (v *VulkanBackend) BeginCommandBuffer(slot int) error {
	res, err := v.CommandBuffers[slot].Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return vkerr.Wrap(res, err, "vkBeginCommandBuffer")
}

func (v *VulkanBackend) BeginRenderPass(slot, imageIndex int) error {
	target := v.Chain.ActiveTarget()
	framebuffer, err := v.Chain.Framebuffer(target, imageIndex)
	if err != nil {
		return err
	}

	buffer := v.CommandBuffers[slot]
	err = buffer.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  v.Chain.RenderPass(target),
		Framebuffer: framebuffer,
		RenderArea:  v.Chain.Scissor(),
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{0, 0, 0, 1},
			core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
		},
	})
	if err != nil {
		return vkerr.Wrap(vkerr.Success, err, "vkCmdBeginRenderPass")
	}

	buffer.CmdSetViewport([]core1_0.Viewport{v.Chain.Viewport()})
	buffer.CmdSetScissor([]core1_0.Rect2D{v.Chain.Scissor()})
	return nil
}

func (v *VulkanBackend) EndRenderPass(slot int) {
	v.CommandBuffers[slot].CmdEndRenderPass()
}

func (v *VulkanBackend) EndCommandBuffer(slot int) error {
	res, err := v.CommandBuffers[slot].End()
	return vkerr.Wrap(res, err, "vkEndCommandBuffer")
}

func (v *VulkanBackend) Submit(slot int) error {
	res, err := v.GraphicsQueue.Submit(v.Slots.InFlight[slot], []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{v.Slots.ImageAvailable[slot]},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{v.CommandBuffers[slot]},
			SignalSemaphores: []core1_0.Semaphore{v.Slots.RenderFinished[slot]},
		},
	})
	return vkerr.Wrap(res, err, "vkQueueSubmit")
}

func (v *VulkanBackend) Present(slot, imageIndex int) (common.VkResult, error) {
	return v.Chain.Extension().QueuePresent(v.PresentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{v.Slots.RenderFinished[slot]},
		Swapchains:     []khr_swapchain.Swapchain{v.Chain.Handle()},
		ImageIndices:   []int{imageIndex},
	})
}

func (v *VulkanBackend) MarkSwapchainStale() {
	v.Swapchain.MarkStale()
}

func (v *VulkanBackend) RecreateSwapchain() error {
	return v.Swapchain.Recreate()
}
