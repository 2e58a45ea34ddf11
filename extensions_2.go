package vkforge

import vk "github.com/vulkan-go/vulkan"

// BaseDeviceExtensions matches a caller's wanted/required device
// extension lists against what the physical device actually reports,
// via DeviceExtensions (extensions.go). NewCoreDevice (device.go) uses
// HasRequired to reject device creation when a mandatory extension is
// missing, before ever calling vk.CreateDevice.
type BaseDeviceExtensions struct {
	wanted   []string
	required []string
	actual   []string
}

func NewBaseDeviceExtensions(wanted []string, required []string, gpu vk.PhysicalDevice) *BaseDeviceExtensions {
	var base BaseDeviceExtensions
	base.wanted = wanted
	base.required = required
	base.actual, _ = DeviceExtensions(gpu)
	return &base
}

func (e *BaseDeviceExtensions) HasRequired() (bool, []string) {
	missing := []string{}

	for _, req := range e.required {
		has := false
		for _, act := range e.actual {
			if req == act {
				has = true
				break
			}
		}
		if !has {
			missing = append(missing, req)
		}
	}

	if len(missing) > 0 {
		return false, missing
	}

	return true, missing
}

func (e *BaseDeviceExtensions) HasWanted() (bool, []string) {
	missing := []string{}

	for _, req := range e.wanted {
		has := false
		for _, act := range e.actual {
			if req == act {
				has = true
				break
			}
		}
		if !has {
			missing = append(missing, req)
		}
	}

	if len(missing) > 0 {
		return false, missing
	}

	return true, missing
}

// GetExtensions returns the extension list to actually enable at device
// creation: every required extension plus any wanted extension the
// device also reports.
func (e *BaseDeviceExtensions) GetExtensions() []string {
	implement := []string{}

	for _, req := range e.required {
		implement = append(implement, req)
	}

	for _, want := range e.wanted {
		hasWanted := false
		for _, req := range e.required {
			if want == req {
				hasWanted = true
			}
		}
		if !hasWanted {
			has := false
			for _, act := range e.actual {
				if want == act {
					has = true
					break
				}
			}
			if has {
				implement = append(implement, want)
			}
		}
	}

	return implement
}
