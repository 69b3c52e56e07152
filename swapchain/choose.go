package swapchain

import (
	"math"

	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"

	"github.com/q2vk/qvk/config"
)

var preferredFormat = khr_surface.SurfaceFormat{
	Format:     core1_0.FormatB8G8R8A8UnsignedNormalized,
	ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
}

// ChooseSurfaceFormat prefers B8G8R8A8 UNORM in the sRGB nonlinear color
// space and otherwise takes the first format offered. A lone undefined
// format means the surface has no preference.
func ChooseSurfaceFormat(available []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	if len(available) == 0 || (len(available) == 1 && available[0].Format == core1_0.FormatUndefined) {
		return preferredFormat
	}

	for _, format := range available {
		if format.Format == preferredFormat.Format && format.ColorSpace == preferredFormat.ColorSpace {
			return format
		}
	}

	return available[0]
}

var presentModes = map[config.PresentMode]khr_surface.PresentMode{
	config.PresentMailbox:     khr_surface.PresentModeMailbox,
	config.PresentFIFO:        khr_surface.PresentModeFIFO,
	config.PresentImmediate:   khr_surface.PresentModeImmediate,
	config.PresentFIFORelaxed: khr_surface.PresentModeFIFORelaxed,
}

// ChoosePresentMode returns the configured mode when the surface offers it.
// FIFO is always available and is the fallback.
func ChoosePresentMode(wanted config.PresentMode, available []khr_surface.PresentMode) khr_surface.PresentMode {
	mode, ok := presentModes[wanted]
	if !ok {
		return khr_surface.PresentModeFIFO
	}

	for _, presentMode := range available {
		if presentMode == mode {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// ChooseExtent uses the surface's current extent unless the window system
// leaves it to the swapchain, in which case the drawable size is clamped to
// the supported range. The driver reports that case as a width of
// 0xFFFFFFFF, which arrives here either sign extended or not.
func ChooseExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if !undefinedExtent(capabilities.CurrentExtent.Width) {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func undefinedExtent(width int) bool {
	return width == -1 || int64(width) == math.MaxUint32
}

// ChooseImageCount asks for one image more than the minimum, within the
// maximum. A maximum of zero means there is none.
func ChooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
