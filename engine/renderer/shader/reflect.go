// Package shader reflects WGSL modules into the layouts a WebGPU pipeline is built from.
package shader

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// Reflection holds what a render pipeline needs to know about a WGSL module.
type Reflection struct {
	// VertexEntry and FragmentEntry are the @vertex and @fragment function names.
	VertexEntry   string
	FragmentEntry string

	// VertexLayout is built from the first struct made only of @location fields.
	VertexLayout wgpu.VertexBufferLayout

	// BindGroups holds one layout descriptor per @group index, entries sorted by binding.
	BindGroups map[int]wgpu.BindGroupLayoutDescriptor
}

// Reflect parses a WGSL module. Every binding is made visible to the vertex and fragment stages.
//
// Parameters:
//   - source: the WGSL source
//
// Returns:
//   - *Reflection: the entry points, vertex layout and bind group layouts
//   - error: a missing entry point or vertex input struct
func Reflect(source string) (*Reflection, error) {
	cleaned := stripComments(source)
	structs := parseStructs(cleaned)

	r := &Reflection{
		VertexEntry:   entryPoint(cleaned, "vertex"),
		FragmentEntry: entryPoint(cleaned, "fragment"),
		BindGroups:    bindGroups(cleaned, structs, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment),
	}
	if r.VertexEntry == "" || r.FragmentEntry == "" {
		return nil, fmt.Errorf("shader: missing @vertex or @fragment entry point")
	}

	found := false
	for _, s := range structs {
		if !s.vertexInput() {
			continue
		}
		layout, err := vertexLayout(s)
		if err != nil {
			return nil, err
		}
		r.VertexLayout = layout
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("shader: no vertex input struct")
	}
	return r, nil
}

// Group returns the entries of one bind group, or nil when the module declares none.
func (r *Reflection) Group(index int) []wgpu.BindGroupLayoutEntry {
	return r.BindGroups[index].Entries
}

func entryPoint(source, stage string) string {
	re := vertexEntryRegex
	if stage == "fragment" {
		re = fragmentEntryRegex
	}
	if m := re.FindStringSubmatch(source); m != nil {
		return m[1]
	}
	return ""
}

// bindGroups collects every @group(G) @binding(B) declaration. Uniform and storage buffers get a
// MinBindingSize when their type resolves.
func bindGroups(source string, structs []wgslStruct, visibility wgpu.ShaderStage) map[int]wgpu.BindGroupLayoutDescriptor {
	sizes := structLayouts(structs)
	groups := make(map[int][]wgpu.BindGroupLayoutEntry)

	for _, m := range bindingRegex.FindAllStringSubmatch(source, -1) {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		space := strings.TrimSpace(m[3])
		typeName := strings.TrimSpace(m[5])

		entry := classify(uint32(binding), visibility, space, typeName)
		if entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
			if l, ok := typeLayout(typeName, sizes); ok {
				entry.Buffer.MinBindingSize = l.size
			}
		}
		groups[group] = append(groups[group], entry)
	}

	out := make(map[int]wgpu.BindGroupLayoutDescriptor, len(groups))
	for g, entries := range groups {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })
		out[g] = wgpu.BindGroupLayoutDescriptor{Entries: entries}
	}
	return out
}

// classify fills the buffer, sampler or texture part of an entry from the declaration.
func classify(binding uint32, visibility wgpu.ShaderStage, space, typeName string) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: visibility}

	switch {
	case space == "uniform":
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
	case strings.HasPrefix(space, "storage"):
		entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		if strings.Contains(space, "read_write") {
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		}
	case typeName == "sampler":
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case typeName == "sampler_comparison":
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	case strings.HasPrefix(typeName, "texture_depth_"):
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
		entry.Texture.ViewDimension = textureDimensions[typeName]
	case strings.HasPrefix(typeName, "texture_"):
		base, param, _ := strings.Cut(typeName, "<")
		entry.Texture.ViewDimension = textureDimensions[base]
		entry.Texture.Multisampled = base == "texture_multisampled_2d"
		if st, ok := sampleTypes[strings.TrimSuffix(param, ">")]; ok {
			entry.Texture.SampleType = st
		}
	}
	return entry
}

// vertexLayout packs the struct's fields back to back in declaration order.
func vertexLayout(s wgslStruct) (wgpu.VertexBufferLayout, error) {
	attrs := make([]wgpu.VertexAttribute, 0, len(s.fields))
	var offset uint64
	for _, f := range s.fields {
		format, ok := vertexFormats[f.typeName]
		if !ok {
			return wgpu.VertexBufferLayout{}, fmt.Errorf("shader: %s.%s has no vertex format for %q", s.name, f.name, f.typeName)
		}
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         format.format,
			Offset:         offset,
			ShaderLocation: uint32(f.location),
		})
		offset += format.size
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attrs,
	}, nil
}
