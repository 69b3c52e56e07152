// Package console builds the pipeline that draws the console overlay: a
// single quad placed by a transform and tinted by a color.
package console

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"

	"github.com/q2vk/qvk/device"
	"github.com/q2vk/qvk/frame"
	"github.com/q2vk/qvk/vkerr"
)

// quad corners as x, y, u, v
var vertices = []float32{
	-1, -1, 0, 0,
	1, 1, 1, 1,
	-1, 1, 0, 1,
	1, -1, 1, 0,
}

var indices = []uint32{0, 1, 2, 0, 3, 1}

const (
	vertexStride = 4 * 4
	uniformSize  = 8 * 4
)

// Uniforms is the uniform block shared by both stages.
type Uniforms struct {
	// Transform is x scale, y scale, x offset, y offset applied to the quad.
	Transform mgl32.Vec4
	Color     mgl32.Vec4
}

// Fullscreen covers the whole viewport.
var Fullscreen = mgl32.Vec4{1, 1, 0, 0}

// Transform places the quad over the rectangle at x, y of size w, h, all in
// normalized device coordinates.
func Transform(x, y, w, h float32) mgl32.Vec4 {
	return mgl32.Vec4{w / 2, h / 2, x + w/2, y + h/2}
}

// uniformBinding is read by the vertex stage for the transform and by the
// fragment stage for the color.
var uniformBinding = core1_0.DescriptorSetLayoutBinding{
	Binding:         0,
	DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
	DescriptorCount: 1,

	StageFlags: core1_0.StageVertex | core1_0.StageFragment,
}

type Options struct {
	// TransferPool records the upload of the quad geometry.
	TransferPool core1_0.CommandPool

	RenderPass core1_0.RenderPass
	Samples    core1_0.SampleCountFlags
	Viewport   core1_0.Viewport
	Scissor    core1_0.Rect2D
	Shaders    Shaders
}

// Pipeline owns the console's buffers, descriptors and pipeline. Each frame
// slot has its own uniform buffer so a frame in flight is never written.
type Pipeline struct {
	device core1_0.Device

	vertexBuffer core1_0.Buffer
	vertexMemory core1_0.DeviceMemory
	indexBuffer  core1_0.Buffer
	indexMemory  core1_0.DeviceMemory

	uniformBuffers [frame.SlotCount]core1_0.Buffer
	uniformMemory  [frame.SlotCount]core1_0.DeviceMemory

	setLayout      core1_0.DescriptorSetLayout
	descriptorPool core1_0.DescriptorPool
	descriptorSets []core1_0.DescriptorSet

	layout   core1_0.PipelineLayout
	pipeline core1_0.Pipeline
}

// New builds the console pipeline for opts.RenderPass. On failure
// everything created so far is released.
func New(ctx *device.Context, opts Options) (*Pipeline, error) {
	p := &Pipeline{device: ctx.Device}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"buffers", func() error { return p.createBuffers(ctx, opts.TransferPool) }},
		{"descriptors", p.createDescriptors},
		{"pipeline", func() error { return p.createPipeline(opts) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			p.Destroy()
			return nil, errors.Wrapf(err, "console %s", step.name)
		}
	}
	return p, nil
}

const hostVisible = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

func (p *Pipeline) createBuffers(ctx *device.Context, transferPool core1_0.CommandPool) error {
	var err error
	p.vertexBuffer, p.vertexMemory, err = ctx.UploadBuffer(transferPool, vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return err
	}

	p.indexBuffer, p.indexMemory, err = ctx.UploadBuffer(transferPool, indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return err
	}

	for i := range p.uniformBuffers {
		p.uniformBuffers[i], p.uniformMemory[i], err = ctx.CreateBuffer(uniformSize, core1_0.BufferUsageUniformBuffer, hostVisible)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) createDescriptors() error {
	var res common.VkResult
	var err error

	p.setLayout, res, err = p.device.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{uniformBinding},
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateDescriptorSetLayout")
	}

	p.descriptorPool, res, err = p.device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: frame.SlotCount,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: frame.SlotCount,
			},
		},
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateDescriptorPool")
	}

	allocLayouts := make([]core1_0.DescriptorSetLayout, frame.SlotCount)
	for i := range allocLayouts {
		allocLayouts[i] = p.setLayout
	}
	p.descriptorSets, res, err = p.device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.descriptorPool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkAllocateDescriptorSets")
	}

	var writes []core1_0.WriteDescriptorSet
	for i, set := range p.descriptorSets {
		writes = append(writes, core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: p.uniformBuffers[i],
					Offset: 0,
					Range:  uniformSize,
				},
			},
		})
	}
	return errors.Wrap(p.device.UpdateDescriptorSets(writes, nil), "vkUpdateDescriptorSets")
}

func (p *Pipeline) createPipeline(opts Options) error {
	vertShader, res, err := p.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: opts.Shaders.Vertex,
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateShaderModule")
	}
	defer vertShader.Destroy(nil)

	fragShader, res, err := p.device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: opts.Shaders.Fragment,
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateShaderModule")
	}
	defer fragShader.Destroy(nil)

	p.layout, res, err = p.device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{p.setLayout},
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreatePipelineLayout")
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
			{
				Binding:   0,
				Stride:    vertexStride,
				InputRate: core1_0.VertexInputRateVertex,
			},
		},
		VertexAttributeDescriptions: []core1_0.VertexInputAttributeDescription{
			{
				Binding:  0,
				Location: 0,
				Format:   core1_0.FormatR32G32SignedFloat,
				Offset:   0,
			},
			{
				Binding:  0,
				Location: 1,
				Format:   core1_0.FormatR32G32SignedFloat,
				Offset:   2 * 4,
			},
		},
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{opts.Viewport},
		Scissors:  []core1_0.Rect2D{opts.Scissor},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeFlags(0),
		FrontFace:   core1_0.FrontFaceClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: opts.Samples,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  false,
		DepthWriteEnable: false,
		DepthCompareOp:   core1_0.CompareOpLessOrEqual,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:        true,
				SrcColorBlendFactor: core1_0.BlendFactorSrcAlpha,
				DstColorBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        core1_0.BlendOpAdd,
				SrcAlphaBlendFactor: core1_0.BlendFactorOne,
				DstAlphaBlendFactor: core1_0.BlendFactorZero,
				AlphaBlendOp:        core1_0.BlendOpAdd,
				ColorWriteMask:      core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	dynamic := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
	}

	pipelines, res, err := p.device.CreateGraphicsPipelines(nil, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				{
					Stage:  core1_0.StageVertex,
					Module: vertShader,
					Name:   "main",
				},
				{
					Stage:  core1_0.StageFragment,
					Module: fragShader,
					Name:   "main",
				},
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			DynamicState:       dynamic,
			Layout:             p.layout,
			RenderPass:         opts.RenderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateGraphicsPipelines")
	}
	p.pipeline = pipelines[0]
	return nil
}

// Draw records the overlay into cmd, which must be inside the render pass
// the pipeline was built for. The uniforms are per slot, so the last Draw of
// a frame sets them for every Draw of that frame.
func (p *Pipeline) Draw(cmd core1_0.CommandBuffer, slot int, transform, color mgl32.Vec4) error {
	if slot < 0 || slot >= frame.SlotCount {
		return errors.AssertionFailedf("console draw into slot %d", slot)
	}

	err := device.WriteData(p.uniformMemory[slot], 0, Uniforms{Transform: transform, Color: color})
	if err != nil {
		return err
	}

	cmd.CmdBindPipeline(core1_0.PipelineBindPointGraphics, p.pipeline)
	cmd.CmdBindDescriptorSets(core1_0.PipelineBindPointGraphics, p.layout, 0, []core1_0.DescriptorSet{p.descriptorSets[slot]}, nil)
	cmd.CmdBindVertexBuffers(0, []core1_0.Buffer{p.vertexBuffer}, []int{0})
	cmd.CmdBindIndexBuffer(p.indexBuffer, 0, core1_0.IndexTypeUInt32)
	cmd.CmdDrawIndexed(len(indices), 1, 0, 0, 0)
	return nil
}

// Destroy releases everything and is safe on a partially built pipeline.
func (p *Pipeline) Destroy() {
	if p == nil {
		return
	}
	if p.pipeline != nil {
		p.pipeline.Destroy(nil)
		p.pipeline = nil
	}
	if p.layout != nil {
		p.layout.Destroy(nil)
		p.layout = nil
	}

	// sets go back with the pool
	p.descriptorSets = nil
	if p.descriptorPool != nil {
		p.descriptorPool.Destroy(nil)
		p.descriptorPool = nil
	}
	if p.setLayout != nil {
		p.setLayout.Destroy(nil)
		p.setLayout = nil
	}

	for i := range p.uniformBuffers {
		destroyBuffer(&p.uniformBuffers[i], &p.uniformMemory[i])
	}
	destroyBuffer(&p.indexBuffer, &p.indexMemory)
	destroyBuffer(&p.vertexBuffer, &p.vertexMemory)
}

func destroyBuffer(buffer *core1_0.Buffer, memory *core1_0.DeviceMemory) {
	if *buffer != nil {
		(*buffer).Destroy(nil)
		*buffer = nil
	}
	if *memory != nil {
		(*memory).Free(nil)
		*memory = nil
	}
}
