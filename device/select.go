package device

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// QueueFamilies holds the family index used for each kind of work. Families
// may coincide.
type QueueFamilies struct {
	Graphics int
	Present  int
	Transfer int
}

// Unique lists each distinct family once, graphics first.
func (f QueueFamilies) Unique() []int {
	unique := []int{f.Graphics}
	for _, idx := range []int{f.Present, f.Transfer} {
		seen := false
		for _, u := range unique {
			if u == idx {
				seen = true
				break
			}
		}
		if !seen {
			unique = append(unique, idx)
		}
	}
	return unique
}

// SelectQueueFamilies picks the graphics, present and transfer families from
// the per-family queue flags and present support of one physical device.
//
// Graphics prefers a family that can also present. Transfer prefers a
// dedicated transfer-only family, then any transfer or compute family other
// than graphics, and falls back to graphics.
func SelectQueueFamilies(flags []core1_0.QueueFlags, presentSupport []bool) (QueueFamilies, error) {
	if len(flags) != len(presentSupport) {
		return QueueFamilies{}, errors.AssertionFailedf("%d queue families but %d present flags", len(flags), len(presentSupport))
	}

	families := QueueFamilies{Graphics: -1, Present: -1, Transfer: -1}

	for idx, f := range flags {
		if f&core1_0.QueueGraphics == 0 {
			continue
		}
		if presentSupport[idx] {
			families.Graphics = idx
			families.Present = idx
			break
		}
		if families.Graphics < 0 {
			families.Graphics = idx
		}
	}
	if families.Graphics < 0 {
		return families, errors.New("no queue family supports graphics")
	}

	if families.Present < 0 {
		for idx, supported := range presentSupport {
			if supported {
				families.Present = idx
				break
			}
		}
	}
	if families.Present < 0 {
		return families, errors.New("no queue family can present to the surface")
	}

	for idx, f := range flags {
		if f&core1_0.QueueTransfer != 0 && f&(core1_0.QueueGraphics|core1_0.QueueCompute) == 0 {
			families.Transfer = idx
			break
		}
	}
	if families.Transfer < 0 {
		for idx, f := range flags {
			if idx != families.Graphics && f&(core1_0.QueueTransfer|core1_0.QueueCompute) != 0 {
				families.Transfer = idx
				break
			}
		}
	}
	if families.Transfer < 0 {
		families.Transfer = families.Graphics
	}

	return families, nil
}

var depthFormats = []core1_0.Format{
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
	core1_0.FormatD16UnsignedNormalizedS8UnsignedInt,
	core1_0.FormatD16UnsignedNormalized,
}

// FindDepthFormat returns the first depth format that supported accepts for
// optimal tiling depth/stencil attachments, falling back to D16.
func FindDepthFormat(supported func(core1_0.Format) bool) core1_0.Format {
	for _, format := range depthFormats {
		if supported(format) {
			return format
		}
	}
	return core1_0.FormatD16UnsignedNormalized
}

// HasStencil reports whether format carries a stencil aspect.
func HasStencil(format core1_0.Format) bool {
	switch format {
	case core1_0.FormatD32SignedFloatS8UnsignedInt,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
		core1_0.FormatD16UnsignedNormalizedS8UnsignedInt:
		return true
	}
	return false
}

var sampleCounts = []struct {
	flag  core1_0.SampleCountFlags
	count int
}{
	{core1_0.Samples64, 64},
	{core1_0.Samples32, 32},
	{core1_0.Samples16, 16},
	{core1_0.Samples8, 8},
	{core1_0.Samples4, 4},
	{core1_0.Samples2, 2},
}

// MaxSampleCount returns the highest sample count both color and depth
// framebuffers support that does not exceed wanted.
func MaxSampleCount(colorCounts, depthCounts core1_0.SampleCountFlags, wanted int) core1_0.SampleCountFlags {
	counts := colorCounts & depthCounts
	for _, s := range sampleCounts {
		if s.count <= wanted && counts&s.flag != 0 {
			return s.flag
		}
	}
	return core1_0.Samples1
}

// SampleCount is the number of samples a single sample count bit stands for.
func SampleCount(flag core1_0.SampleCountFlags) int {
	for _, s := range sampleCounts {
		if s.flag == flag {
			return s.count
		}
	}
	return 1
}

// hasAll reports whether every name in wanted is available.
func hasAll(wanted []string, available func(string) bool) (string, bool) {
	for _, name := range wanted {
		if !available(name) {
			return name, false
		}
	}
	return "", true
}
