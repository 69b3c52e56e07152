package device

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/q2vk/qvk/vkerr"
)

// FindMemoryType returns the first memory type allowed by typeFilter that has
// all of properties.
func (c *Context) FindMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := c.PhysicalDevice.MemoryProperties()
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type matches filter %#x with properties %s", typeFilter, properties)
}

// CreateBuffer creates a buffer and binds freshly allocated memory to it. On
// failure nothing is left behind.
func (c *Context) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	return c.createBuffer(size, usage, properties, nil)
}

// createBuffer shares the buffer between queueFamilies when more than one
// is given.
func (c *Context) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags, queueFamilies []int) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	sharingMode := core1_0.SharingModeExclusive
	if len(queueFamilies) > 1 {
		sharingMode = core1_0.SharingModeConcurrent
	} else {
		queueFamilies = nil
	}

	buffer, res, err := c.Device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:               size,
		Usage:              usage,
		SharingMode:        sharingMode,
		QueueFamilyIndices: queueFamilies,
	})
	if err != nil {
		return nil, nil, vkerr.Wrap(res, err, "vkCreateBuffer")
	}

	memRequirements := buffer.MemoryRequirements()
	memoryTypeIndex, err := c.FindMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		buffer.Destroy(nil)
		return nil, nil, err
	}

	memory, res, err := c.Device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		buffer.Destroy(nil)
		return nil, nil, vkerr.Wrap(res, err, "vkAllocateMemory")
	}

	res, err = buffer.BindBufferMemory(memory, 0)
	if err != nil {
		buffer.Destroy(nil)
		memory.Free(nil)
		return nil, nil, vkerr.Wrap(res, err, "vkBindBufferMemory")
	}
	return buffer, memory, nil
}

// UploadBuffer copies data into a new device local buffer through a staging
// buffer. The copy runs on the transfer queue with a command buffer from
// pool, which must belong to the transfer family, and is waited for before
// returning.
func (c *Context) UploadBuffer(pool core1_0.CommandPool, data any, usage core1_0.BufferUsageFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	size := binary.Size(data)
	if size <= 0 {
		return nil, nil, errors.AssertionFailedf("cannot upload %T", data)
	}

	stagingBuffer, stagingMemory, err := c.CreateBuffer(size, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, nil, err
	}
	defer stagingBuffer.Destroy(nil)
	defer stagingMemory.Free(nil)

	err = WriteData(stagingMemory, 0, data)
	if err != nil {
		return nil, nil, err
	}

	// written on the transfer queue, read on the graphics queue
	families := []int{c.Families.Graphics}
	if c.Families.Transfer != c.Families.Graphics {
		families = append(families, c.Families.Transfer)
	}

	buffer, memory, err := c.createBuffer(size, usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal, families)
	if err != nil {
		return nil, nil, err
	}

	err = c.copyBuffer(pool, stagingBuffer, buffer, size)
	if err != nil {
		buffer.Destroy(nil)
		memory.Free(nil)
		return nil, nil, err
	}
	return buffer, memory, nil
}

func (c *Context) copyBuffer(pool core1_0.CommandPool, srcBuffer core1_0.Buffer, dstBuffer core1_0.Buffer, size int) error {
	buffers, res, err := c.Device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkAllocateCommandBuffers")
	}
	defer c.Device.FreeCommandBuffers(buffers)

	buffer := buffers[0]
	res, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkBeginCommandBuffer")
	}

	buffer.CmdCopyBuffer(srcBuffer, dstBuffer, []core1_0.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	})

	res, err = buffer.End()
	if err != nil {
		return vkerr.Wrap(res, err, "vkEndCommandBuffer")
	}

	res, err = c.TransferQueue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkQueueSubmit")
	}

	res, err = c.TransferQueue.WaitIdle()
	return vkerr.Wrap(res, err, "vkQueueWaitIdle")
}

// ImageOptions describes a single-mip 2D image.
type ImageOptions struct {
	Width, Height int
	Samples       core1_0.SampleCountFlags
	Format        core1_0.Format
	Usage         core1_0.ImageUsageFlags
	Aspect        core1_0.ImageAspectFlags
}

// Texture is an image with its memory and a view over it. Draw buffers are
// textures.
type Texture struct {
	Image  core1_0.Image
	Memory core1_0.DeviceMemory
	View   core1_0.ImageView
}

// CreateTexture creates a device local image, binds memory and creates a
// view over it.
func (c *Context) CreateTexture(opts ImageOptions) (*Texture, error) {
	t := &Texture{}
	var res common.VkResult
	var err error

	t.Image, res, err = c.Device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  opts.Width,
			Height: opts.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        opts.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         opts.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       opts.Samples,
	})
	if err != nil {
		return nil, vkerr.Wrap(res, err, "vkCreateImage")
	}

	memReqs := t.Image.MemoryRequirements()
	memoryIndex, err := c.FindMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		t.Destroy()
		return nil, err
	}

	t.Memory, res, err = c.Device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		t.Destroy()
		return nil, vkerr.Wrap(res, err, "vkAllocateMemory")
	}

	res, err = t.Image.BindImageMemory(t.Memory, 0)
	if err != nil {
		t.Destroy()
		return nil, vkerr.Wrap(res, err, "vkBindImageMemory")
	}

	t.View, err = c.CreateImageView(t.Image, opts.Format, opts.Aspect)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// Destroy is safe on a partially created texture and on nil.
func (t *Texture) Destroy() {
	if t == nil {
		return
	}
	if t.View != nil {
		t.View.Destroy(nil)
		t.View = nil
	}
	if t.Image != nil {
		t.Image.Destroy(nil)
		t.Image = nil
	}
	if t.Memory != nil {
		t.Memory.Free(nil)
		t.Memory = nil
	}
}

func (c *Context) CreateImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (core1_0.ImageView, error) {
	imageView, res, err := c.Device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return nil, vkerr.Wrap(res, err, "vkCreateImageView")
	}
	return imageView, nil
}

// WriteData copies data, encoded in the driver's byte order, into host
// visible memory at offset.
func WriteData(memory core1_0.DeviceMemory, offset int, data any) error {
	bufferSize := binary.Size(data)
	if bufferSize < 0 {
		return errors.AssertionFailedf("cannot encode %T", data)
	}

	memoryPtr, res, err := memory.Map(offset, bufferSize, 0)
	if err != nil {
		return vkerr.Wrap(res, err, "vkMapMemory")
	}
	defer memory.Unmap()

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return errors.Wrap(err, "encode buffer data")
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}
