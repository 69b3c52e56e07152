// Package vkerr turns native Vulkan result codes into Go errors the rest of
// the renderer can log, inspect and classify.
package vkerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
)

// Result codes the renderer cares about. The values match VkResult so they
// compare equal to anything the driver hands back.
const (
	Success                   common.VkResult = 0
	NotReady                  common.VkResult = 1
	Timeout                   common.VkResult = 2
	EventSet                  common.VkResult = 3
	EventReset                common.VkResult = 4
	Incomplete                common.VkResult = 5
	ErrorOutOfHostMemory      common.VkResult = -1
	ErrorOutOfDeviceMemory    common.VkResult = -2
	ErrorInitializationFailed common.VkResult = -3
	ErrorDeviceLost           common.VkResult = -4
	ErrorMemoryMapFailed      common.VkResult = -5
	ErrorLayerNotPresent      common.VkResult = -6
	ErrorExtensionNotPresent  common.VkResult = -7
	ErrorFeatureNotPresent    common.VkResult = -8
	ErrorIncompatibleDriver   common.VkResult = -9
	ErrorTooManyObjects       common.VkResult = -10
	ErrorFormatNotSupported   common.VkResult = -11
	ErrorFragmentedPool       common.VkResult = -12
	ErrorSurfaceLost          common.VkResult = -1000000000
	ErrorNativeWindowInUse    common.VkResult = -1000000001
	Suboptimal                common.VkResult = 1000001003
	ErrorOutOfDate            common.VkResult = -1000001004
	ErrorIncompatibleDisplay  common.VkResult = -1000003001
	ErrorValidationFailed     common.VkResult = -1000011001
	ErrorInvalidShader        common.VkResult = -1000012000
)

var names = map[common.VkResult]string{
	Success:                   "VK_SUCCESS",
	NotReady:                  "VK_NOT_READY",
	Timeout:                   "VK_TIMEOUT",
	EventSet:                  "VK_EVENT_SET",
	EventReset:                "VK_EVENT_RESET",
	Incomplete:                "VK_INCOMPLETE",
	ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	ErrorFragmentedPool:       "VK_ERROR_FRAGMENTED_POOL",
	ErrorSurfaceLost:          "VK_ERROR_SURFACE_LOST_KHR",
	ErrorNativeWindowInUse:    "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	Suboptimal:                "VK_SUBOPTIMAL_KHR",
	ErrorOutOfDate:            "VK_ERROR_OUT_OF_DATE_KHR",
	ErrorIncompatibleDisplay:  "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	ErrorValidationFailed:     "VK_ERROR_VALIDATION_FAILED_EXT",
	ErrorInvalidShader:        "VK_ERROR_INVALID_SHADER_NV",
}

// String returns the symbolic name of res, or "UNKNOWN ERROR".
func String(res common.VkResult) string {
	name, ok := names[res]
	if !ok {
		return "UNKNOWN ERROR"
	}
	return name
}

// ResultError is a failed native call together with the code it returned.
type ResultError struct {
	Op     string
	Result common.VkResult
	cause  error
}

func (e *ResultError) Error() string { return fmt.Sprint(e) }

func (e *ResultError) Unwrap() error { return e.cause }

func (e *ResultError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

// FormatError prints the op and result name ahead of the cause, so the name
// survives any further wrapping.
func (e *ResultError) FormatError(p errors.Printer) error {
	p.Printf("%s: %s", e.Op, String(e.Result))
	return e.cause
}

// Wrap attaches op and the symbolic result name to a failed call. It returns
// nil when err is nil and res is not an error code. A nil err with a negative
// res still produces an error, since some calls only report through res.
func Wrap(res common.VkResult, err error, op string) error {
	if err == nil && res >= 0 {
		return nil
	}
	if res >= 0 {
		// the wrapper failed before reaching the driver
		return errors.Wrap(err, op)
	}
	return errors.WithStack(&ResultError{Op: op, Result: res, cause: err})
}

// Code recovers the native result carried by err. The second return is
// false when err did not come from Wrap.
func Code(err error) (common.VkResult, bool) {
	var re *ResultError
	if errors.As(err, &re) {
		return re.Result, true
	}
	return Success, false
}

// Fatal marks err as an assertion-class failure while keeping its cause
// chain, so Code still finds the native result.
func Fatal(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WithAssertionFailure(errors.Wrap(err, op))
}

// IsFatal reports whether err is an assertion-class failure the host has to
// abort on.
func IsFatal(err error) bool {
	return err != nil && errors.HasAssertionFailure(err)
}
