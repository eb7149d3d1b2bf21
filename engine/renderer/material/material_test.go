package material

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapSource serves textures by path and fails for the paths in broken.
type mapSource struct {
	textures map[string]Texture
	broken   map[string]error
	calls    int
}

func (s *mapSource) Texture(tex *common.ImportedTexture, scope string) (Texture, error) {
	s.calls++
	key := tex.Key(scope)
	if err := s.broken[key]; err != nil {
		return Texture{}, err
	}
	return s.textures[key], nil
}

func newTexture(label string) Texture {
	return Texture{
		Texture: renderer.NewResource(renderer.ResourceKindTexture, label, nil, nil),
		View:    renderer.NewResource(renderer.ResourceKindTextureView, label+" view", nil, nil),
		Sampler: renderer.NewResource(renderer.ResourceKindSampler, label+" sampler", nil, nil),
	}
}

func TestResolve_PairsDiffuseAndSpecular(t *testing.T) {
	diffuse, specular := newTexture("diffuse"), newTexture("specular")
	src := &mapSource{textures: map[string]Texture{"d.png": diffuse, "s.png": specular}}
	m := NewMaterial(
		WithName("skin"),
		WithDiffuseTexture(&common.ImportedTexture{Path: "d.png"}),
		WithSpecularTexture(&common.ImportedTexture{Path: "s.png"}),
	)

	require.NoError(t, m.Resolve(src, "chimp.glb"))
	assert.True(t, m.Resolved())
	assert.False(t, m.SpecularFallback())
	assert.Equal(t, diffuse, m.Diffuse())
	assert.Equal(t, specular, m.Specular())

	uniform := renderer.NewResource(renderer.ResourceKindBuffer, "ubo", nil, nil)
	b := m.Binding(uniform)
	assert.Same(t, uniform, b.Uniform)
	assert.Same(t, diffuse.View, b.Diffuse)
	assert.Same(t, specular.Sampler, b.SpecularSampler)
}

func TestResolve_MissingSpecularFallsBackToDiffuse(t *testing.T) {
	diffuse := newTexture("diffuse")
	src := &mapSource{textures: map[string]Texture{"d.png": diffuse}}
	m := FromImported(common.ImportedMaterial{
		Name:           "feathers",
		DiffuseTexture: &common.ImportedTexture{Path: "d.png"},
	})

	require.NoError(t, m.Resolve(src, "bird.glb"))
	assert.True(t, m.SpecularFallback())
	b := m.Binding(nil)
	assert.Same(t, diffuse.View, b.Specular)
	assert.Same(t, diffuse.Sampler, b.SpecularSampler)
	assert.Equal(t, 1, src.calls)
}

func TestResolve_BrokenSpecularFallsBackToDiffuse(t *testing.T) {
	diffuse := newTexture("diffuse")
	src := &mapSource{
		textures: map[string]Texture{"d.png": diffuse},
		broken:   map[string]error{"s.png": errors.New("no such file")},
	}
	m := NewMaterial(
		WithDiffuseTexture(&common.ImportedTexture{Path: "d.png"}),
		WithSpecularTexture(&common.ImportedTexture{Path: "s.png"}),
	)

	require.NoError(t, m.Resolve(src, "pony.glb"))
	assert.True(t, m.SpecularFallback())
	assert.Equal(t, diffuse, m.Specular())
}

func TestResolve_DiffuseIsMandatory(t *testing.T) {
	src := &mapSource{}

	err := NewMaterial(WithName("bare")).Resolve(src, "x.glb")
	assert.ErrorIs(t, err, ErrMissingDiffuse)

	broken := errors.New("corrupt png")
	src.broken = map[string]error{"d.png": broken}
	m := NewMaterial(WithDiffuseTexture(&common.ImportedTexture{Path: "d.png"}))
	err = m.Resolve(src, "x.glb")
	assert.ErrorIs(t, err, broken)
	assert.False(t, m.Resolved())
}
