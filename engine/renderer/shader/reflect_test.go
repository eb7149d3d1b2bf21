package shader

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-bench/shaders"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflect_SkinnedModule(t *testing.T) {
	r, err := Reflect(shaders.SkinnedWGSL)
	require.NoError(t, err)

	assert.Equal(t, "vs_main", r.VertexEntry)
	assert.Equal(t, "fs_main", r.FragmentEntry)

	assert.Equal(t, uint64(96), r.VertexLayout.ArrayStride)
	require.Len(t, r.VertexLayout.Attributes, 7)
	offsets := []uint64{0, 12, 24, 32, 48, 64, 80}
	for i, attr := range r.VertexLayout.Attributes {
		assert.Equal(t, uint32(i), attr.ShaderLocation)
		assert.Equal(t, offsets[i], attr.Offset)
	}
	assert.Equal(t, wgpu.VertexFormatUint32x4, r.VertexLayout.Attributes[3].Format)

	group0 := r.Group(0)
	require.Len(t, group0, 5)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, group0[0].Buffer.Type)
	assert.Equal(t, uint64(100*64+16), group0[0].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.TextureSampleTypeFloat, group0[1].Texture.SampleType)
	assert.Equal(t, wgpu.TextureViewDimension2D, group0[1].Texture.ViewDimension)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, group0[2].Sampler.Type)

	group1 := r.Group(1)
	require.Len(t, group1, 1)
	assert.Equal(t, uint64(128), group1[0].Buffer.MinBindingSize)
	assert.Nil(t, r.Group(2))
}

func TestReflect_IgnoresCommentedDeclarations(t *testing.T) {
	src := `
struct In { @location(0) p: vec3<f32>, }
/* @group(0) @binding(0) var<uniform> hidden: In; */
// @group(0) @binding(1) var gone: sampler;
@group(0) @binding(2) var s: sampler;
@vertex fn vmain(in: In) -> @builtin(position) vec4<f32> { return vec4<f32>(in.p, 1.0); }
@fragment fn fmain() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }
`
	r, err := Reflect(src)
	require.NoError(t, err)
	entries := r.Group(0)
	require.Len(t, entries, 1)
	assert.Equal(t, uint32(2), entries[0].Binding)
	assert.Equal(t, uint64(12), r.VertexLayout.ArrayStride)
}

func TestReflect_Errors(t *testing.T) {
	_, err := Reflect(`@vertex fn v() {}`)
	assert.ErrorContains(t, err, "entry point")

	_, err = Reflect(`@vertex fn v() {} @fragment fn f() {}`)
	assert.ErrorContains(t, err, "vertex input")

	_, err = Reflect(`struct In { @location(0) m: mat4x4<f32>, } @vertex fn v() {} @fragment fn f() {}`)
	assert.ErrorContains(t, err, "no vertex format")
}

func TestTypeLayout_Arrays(t *testing.T) {
	known := map[string]typeSize{}
	l, ok := typeLayout("array<vec3<f32>, 4>", known)
	require.True(t, ok)
	assert.Equal(t, uint64(64), l.size)

	_, ok = typeLayout("array<f32>", known)
	assert.False(t, ok)
}
