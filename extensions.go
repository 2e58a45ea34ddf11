package vkforge

import (
	vk "github.com/vulkan-go/vulkan"
)

type Etxensions interface {
	HasRequired() (bool, []string)
	HasWanted() (bool, []string)
	GetExtensions() []string
}

// DeviceExtensions gets a list of device extensions available on the provided physical device.
// Called from NewCoreDevice (device.go) to validate the caller's requested
// extension list before CreateDevice.
func DeviceExtensions(gpu vk.PhysicalDevice) (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	Fatal(NewError(ret))
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list)
	Fatal(NewError(ret))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, err
}

