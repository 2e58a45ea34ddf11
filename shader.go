package vkforge

import (
	"io/ioutil"

	vk "github.com/vulkan-go/vulkan"
)

const (
	VERTEX  = 0
	FRAG    = 1
	COMPUTE = 2
	GEOM    = 3
	TESS    = 4
)

// CoreShader holds every loaded shader module and assembled program for
// a device, keyed by program name. Loads against a CoreDevice directly,
// with no dependency on any particular application bootstrap path.
type CoreShader struct {
	shader_paths    map[string]int // Shader path -> shader type
	shader_programs map[string]*ShaderProgram
}

func NewCoreShader(paths map[string]int, num_programs int) *CoreShader {
	var core CoreShader
	core.shader_paths = paths
	core.shader_programs = make(map[string]*ShaderProgram, num_programs)
	return &core
}

// CreateProgram loads and links the vertex/fragment modules named by
// paths into a ShaderProgram stored under name.
func (core *CoreShader) CreateProgram(name string, device *CoreDevice, paths []string) error {
	var pg ShaderProgram

	for _, path := range paths {
		path_id := core.shader_paths[path]
		var bindingModule vk.ShaderModule
		if err := core.LoadShaderModule(device, path, &bindingModule); err != nil {
			return err
		}

		switch path_id {
		case VERTEX:
			pg.vertex_shader_modules = &bindingModule
		case FRAG:
			pg.fragment_shader_modules = &bindingModule
		}
	}
	core.shader_programs[name] = &pg
	return nil
}

func (core *CoreShader) Program(name string) (*ShaderProgram, bool) {
	p, ok := core.shader_programs[name]
	return p, ok
}

type ShaderProgram struct {
	vertex_shader_modules   *vk.ShaderModule
	fragment_shader_modules *vk.ShaderModule
}

// LoadShaderModule reads a SPIR-V binary from path and creates a
// vk.ShaderModule for device.
func (core *CoreShader) LoadShaderModule(device *CoreDevice, path string, out_shader *vk.ShaderModule) error {
	buffer, err := ioutil.ReadFile(path)
	if err != nil {
		return newErr(KindInvalidState, "LoadShaderModule", err)
	}

	convertBytes := sliceUint32(buffer)
	module := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(buffer)),
		PCode:    convertBytes,
	}

	var shaderModule vk.ShaderModule
	res := vk.CreateShaderModule(device.Device(), &module, nil, &shaderModule)
	if isError(res) {
		return newErr(KindUnderlyingApiFailure, "LoadShaderModule", newError(res))
	}

	*out_shader = shaderModule
	return nil
}
