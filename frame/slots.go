package frame

import (
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/q2vk/qvk/vkerr"
)

// Slots holds the synchronization objects of every frame slot. Fences start
// signaled so the first wait on each slot returns at once.
type Slots struct {
	ImageAvailable [SlotCount]core1_0.Semaphore
	RenderFinished [SlotCount]core1_0.Semaphore
	InFlight       [SlotCount]core1_0.Fence
}

func CreateSlots(device core1_0.Device) (*Slots, error) {
	s := &Slots{}
	for i := 0; i < SlotCount; i++ {
		semaphore, res, err := device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			s.Destroy()
			return nil, vkerr.Wrap(res, err, "vkCreateSemaphore")
		}
		s.ImageAvailable[i] = semaphore

		semaphore, res, err = device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			s.Destroy()
			return nil, vkerr.Wrap(res, err, "vkCreateSemaphore")
		}
		s.RenderFinished[i] = semaphore

		fence, res, err := device.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			s.Destroy()
			return nil, vkerr.Wrap(res, err, "vkCreateFence")
		}
		s.InFlight[i] = fence
	}
	return s, nil
}

func (s *Slots) Destroy() {
	if s == nil {
		return
	}
	for i := 0; i < SlotCount; i++ {
		if s.ImageAvailable[i] != nil {
			s.ImageAvailable[i].Destroy(nil)
			s.ImageAvailable[i] = nil
		}
		if s.RenderFinished[i] != nil {
			s.RenderFinished[i].Destroy(nil)
			s.RenderFinished[i] = nil
		}
		if s.InFlight[i] != nil {
			s.InFlight[i].Destroy(nil)
			s.InFlight[i] = nil
		}
	}
}

// AllocateCommandBuffers allocates one primary command buffer per slot.
func AllocateCommandBuffers(device core1_0.Device, pool core1_0.CommandPool) ([]core1_0.CommandBuffer, error) {
	buffers, res, err := device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: SlotCount,
	})
	if err != nil {
		return nil, vkerr.Wrap(res, err, "vkAllocateCommandBuffers")
	}
	return buffers, nil
}
