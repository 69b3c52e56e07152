// Package device bootstraps Vulkan: instance, validation messenger, surface,
// physical device selection, logical device and queues.
package device

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v2/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"

	"github.com/q2vk/qvk/config"
	"github.com/q2vk/qvk/vkerr"
)

const (
	validationLayer = "VK_LAYER_KHRONOS_validation"
	defaultMSAA     = 8
)

var deviceExtensions = []string{khr_swapchain.ExtensionName}

// Host is what the bootstrap needs from the engine: a console to print
// progress to and the platform's surface.
type Host interface {
	Printf(format string, args ...any)
	SurfaceExtensions() []string
	CreateSurface(instance core1_0.Instance, surfaceExt khr_surface.Extension) (khr_surface.Surface, error)
}

// Context owns the instance level and device level handles. Everything else
// in the renderer is created from it.
type Context struct {
	Instance       core1_0.Instance
	DebugMessenger ext_debug_utils.DebugUtilsMessenger
	SurfaceExt     khr_surface.Extension
	Surface        khr_surface.Surface

	PhysicalDevice core1_0.PhysicalDevice
	Device         core1_0.Device
	Families       QueueFamilies

	GraphicsQueue core1_0.Queue
	PresentQueue  core1_0.Queue
	TransferQueue core1_0.Queue

	DepthFormat core1_0.Format
	// MSAASamples is the sample count of the multisampled render target,
	// already clamped to what the device supports. Samples1 means the
	// device cannot multisample and only the standard target exists.
	MSAASamples core1_0.SampleCountFlags

	log zerolog.Logger
}

// New runs the whole bootstrap. On failure everything created so far is
// destroyed again.
func New(loader core.Loader, host Host, cfg config.VkConfig, log zerolog.Logger) (*Context, error) {
	c := &Context{log: log}

	err := c.createInstance(loader, host, cfg)
	if err != nil {
		return nil, err
	}
	host.Printf("...created Vulkan instance\n")

	if cfg.Validation {
		err = c.setupDebugMessenger()
		if err != nil {
			c.Destroy()
			return nil, err
		}
	}

	c.SurfaceExt = khr_surface.CreateExtensionFromInstance(c.Instance)
	c.Surface, err = host.CreateSurface(c.Instance, c.SurfaceExt)
	if err != nil {
		c.Destroy()
		return nil, c.fail(host, "Could not create Vulkan surface", err)
	}
	host.Printf("...created Vulkan surface\n")

	err = c.pickPhysicalDevice(cfg.Device)
	if err != nil {
		c.Destroy()
		return nil, c.fail(host, "Could not find a suitable physical device", err)
	}

	err = c.createLogicalDevice()
	if err != nil {
		c.Destroy()
		return nil, c.fail(host, "Could not create Vulkan device", err)
	}
	host.Printf("...created Vulkan device\n")

	c.DepthFormat = FindDepthFormat(func(format core1_0.Format) bool {
		props := c.PhysicalDevice.FormatProperties(format)
		return props.OptimalTilingFeatures&core1_0.FormatFeatureDepthStencilAttachment != 0
	})

	props, err := c.PhysicalDevice.Properties()
	if err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "read physical device properties")
	}
	c.MSAASamples = MaxSampleCount(props.Limits.FramebufferColorSampleCounts, props.Limits.FramebufferDepthSampleCounts, msaaWanted(cfg))

	c.log.Info().
		Int("graphics", c.Families.Graphics).
		Int("present", c.Families.Present).
		Int("transfer", c.Families.Transfer).
		Stringer("depth", c.DepthFormat).
		Int("msaa", SampleCount(c.MSAASamples)).
		Msg("device ready")

	return c, nil
}

// msaaWanted is the sample count asked of the multisampled target, which is
// built even while the standard target is the active one.
func msaaWanted(cfg config.VkConfig) int {
	if cfg.MSAAEnabled() {
		return cfg.MSAA
	}
	return defaultMSAA
}

// fail reports a bootstrap failure on the console, by result name when the
// driver returned one.
func (c *Context) fail(host Host, msg string, err error) error {
	reason := err.Error()
	if res, ok := vkerr.Code(err); ok {
		reason = vkerr.String(res)
	}
	host.Printf("QVk_Init(): %s: %s\n", msg, reason)
	c.log.Error().Err(err).Msg(msg)
	return errors.Wrap(err, msg)
}

// instanceExtensions builds the extension list for instance creation. The
// second return reports whether portability enumeration was added.
func instanceExtensions(surfaceExts []string, validation bool, available func(string) bool) ([]string, bool, error) {
	if missing, ok := hasAll(surfaceExts, available); !ok {
		return nil, false, errors.Newf("missing instance extension %s", missing)
	}

	extensions := append([]string(nil), surfaceExts...)
	if validation {
		extensions = append(extensions, ext_debug_utils.ExtensionName)
	}

	portability := available(khr_portability_enumeration.ExtensionName)
	if portability {
		extensions = append(extensions, khr_portability_enumeration.ExtensionName)
	}
	return extensions, portability, nil
}

func (c *Context) createInstance(loader core.Loader, host Host, cfg config.VkConfig) error {
	available, res, err := loader.AvailableExtensions()
	if err != nil {
		return c.fail(host, "Could not enumerate instance extensions", vkerr.Wrap(res, err, "vkEnumerateInstanceExtensionProperties"))
	}

	extensions, portability, err := instanceExtensions(host.SurfaceExtensions(), cfg.Validation, func(name string) bool {
		_, ok := available[name]
		return ok
	})
	if err != nil {
		return c.fail(host, "Could not create Vulkan instance", err)
	}
	host.Printf("Vulkan extensions: %s\n", strings.Join(extensions, " "))

	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:       "Quake 2",
		ApplicationVersion:    common.CreateVersion(3, 21, 0),
		EngineName:            "id Tech 2",
		EngineVersion:         common.CreateVersion(2, 0, 0),
		APIVersion:            common.Vulkan1_1,
		EnabledExtensionNames: extensions,
	}
	if portability {
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if cfg.Validation {
		layers, res, err := loader.AvailableLayers()
		if err != nil {
			return c.fail(host, "Could not enumerate instance layers", vkerr.Wrap(res, err, "vkEnumerateInstanceLayerProperties"))
		}
		if _, ok := layers[validationLayer]; !ok {
			return c.fail(host, "Could not create Vulkan instance", errors.Newf("validation layer %s not available, install the Vulkan SDK", validationLayer))
		}
		instanceOptions.EnabledLayerNames = []string{validationLayer}
		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.Instance, res, err = loader.CreateInstance(nil, instanceOptions)
	if err != nil {
		return c.fail(host, "Could not create Vulkan instance", vkerr.Wrap(res, err, "vkCreateInstance"))
	}
	return nil
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	ev := c.log.Warn()
	if severity&ext_debug_utils.SeverityError != 0 {
		ev = c.log.Error()
	}
	ev.Stringer("type", msgType).Msg(data.Message)
	return false
}

func (c *Context) setupDebugMessenger() error {
	var res common.VkResult
	var err error
	debugLoader := ext_debug_utils.CreateExtensionFromInstance(c.Instance)
	c.DebugMessenger, res, err = debugLoader.CreateDebugUtilsMessenger(c.Instance, nil, c.debugMessengerOptions())
	return vkerr.Wrap(res, err, "vkCreateDebugUtilsMessengerEXT")
}

// SwapchainSupport is what the surface offers a physical device.
type SwapchainSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

func querySwapchainSupport(surface khr_surface.Surface, pd core1_0.PhysicalDevice) (SwapchainSupport, error) {
	var details SwapchainSupport
	var res common.VkResult
	var err error

	details.Capabilities, res, err = surface.PhysicalDeviceSurfaceCapabilities(pd)
	if err != nil {
		return details, vkerr.Wrap(res, err, "vkGetPhysicalDeviceSurfaceCapabilitiesKHR")
	}

	details.Formats, res, err = surface.PhysicalDeviceSurfaceFormats(pd)
	if err != nil {
		return details, vkerr.Wrap(res, err, "vkGetPhysicalDeviceSurfaceFormatsKHR")
	}

	details.PresentModes, res, err = surface.PhysicalDeviceSurfacePresentModes(pd)
	return details, vkerr.Wrap(res, err, "vkGetPhysicalDeviceSurfacePresentModesKHR")
}

// QuerySwapchainSupport reads the surface capabilities, formats and present
// modes of the selected physical device.
func (c *Context) QuerySwapchainSupport() (SwapchainSupport, error) {
	return querySwapchainSupport(c.Surface, c.PhysicalDevice)
}

func (c *Context) findQueueFamilies(pd core1_0.PhysicalDevice) (QueueFamilies, error) {
	var flags []core1_0.QueueFlags
	var present []bool
	for idx, family := range pd.QueueFamilyProperties() {
		supported, res, err := c.Surface.PhysicalDeviceSurfaceSupport(pd, idx)
		if err != nil {
			return QueueFamilies{}, vkerr.Wrap(res, err, "vkGetPhysicalDeviceSurfaceSupportKHR")
		}
		flags = append(flags, family.QueueFlags)
		present = append(present, supported)
	}
	return SelectQueueFamilies(flags, present)
}

func (c *Context) isDeviceSuitable(pd core1_0.PhysicalDevice) bool {
	if _, err := c.findQueueFamilies(pd); err != nil {
		return false
	}

	extensions, _, err := pd.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}
	if _, ok := hasAll(deviceExtensions, func(name string) bool {
		_, ok := extensions[name]
		return ok
	}); !ok {
		return false
	}

	support, err := querySwapchainSupport(c.Surface, pd)
	if err != nil {
		return false
	}
	return len(support.Formats) > 0 && len(support.PresentModes) > 0
}

// pickPhysicalDevice honours an explicit index, otherwise takes the first
// suitable device.
func (c *Context) pickPhysicalDevice(index int) error {
	physicalDevices, res, err := c.Instance.EnumeratePhysicalDevices()
	if err != nil {
		return vkerr.Wrap(res, err, "vkEnumeratePhysicalDevices")
	}
	if len(physicalDevices) == 0 {
		return errors.New("no Vulkan capable devices found")
	}

	if index >= 0 {
		if index >= len(physicalDevices) {
			return errors.Newf("vk.device %d out of range, %d devices present", index, len(physicalDevices))
		}
		if !c.isDeviceSuitable(physicalDevices[index]) {
			return errors.Newf("device %d cannot render to this surface", index)
		}
		c.PhysicalDevice = physicalDevices[index]
		return nil
	}

	for _, pd := range physicalDevices {
		if c.isDeviceSuitable(pd) {
			c.PhysicalDevice = pd
			return nil
		}
	}
	return errors.New("failed to find a suitable GPU")
}

func (c *Context) createLogicalDevice() error {
	var err error
	c.Families, err = c.findQueueFamilies(c.PhysicalDevice)
	if err != nil {
		return err
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, family := range c.Families.Unique() {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string(nil), deviceExtensions...)

	// required on portability implementations such as MoltenVK
	extensions, res, err := c.PhysicalDevice.EnumerateDeviceExtensionProperties()
	if err != nil {
		return vkerr.Wrap(res, err, "vkEnumerateDeviceExtensionProperties")
	}
	if _, ok := extensions[khr_portability_subset.ExtensionName]; ok {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.Device, res, err = c.PhysicalDevice.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return vkerr.Wrap(res, err, "vkCreateDevice")
	}

	c.GraphicsQueue = c.Device.GetQueue(c.Families.Graphics, 0)
	c.PresentQueue = c.Device.GetQueue(c.Families.Present, 0)
	c.TransferQueue = c.Device.GetQueue(c.Families.Transfer, 0)
	return nil
}

// WaitIdle blocks until the device has finished all submitted work.
func (c *Context) WaitIdle() error {
	if c.Device == nil {
		return nil
	}
	res, err := c.Device.WaitIdle()
	return vkerr.Wrap(res, err, "vkDeviceWaitIdle")
}

// Destroy releases the device, debug messenger, surface and instance, in
// that order. Calling it again is a no-op.
func (c *Context) Destroy() {
	if c.Device != nil {
		c.Device.Destroy(nil)
		c.Device = nil
	}
	c.GraphicsQueue, c.PresentQueue, c.TransferQueue = nil, nil, nil
	c.PhysicalDevice = nil

	if c.DebugMessenger != nil {
		c.DebugMessenger.Destroy(nil)
		c.DebugMessenger = nil
	}

	if c.Surface != nil {
		c.Surface.Destroy(nil)
		c.Surface = nil
	}

	if c.Instance != nil {
		c.Instance.Destroy(nil)
		c.Instance = nil
	}
}
