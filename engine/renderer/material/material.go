package material

import (
	"errors"
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
)

// ErrMissingDiffuse is returned when a material without a usable diffuse texture is resolved.
// A model with such a material cannot be drawn.
var ErrMissingDiffuse = errors.New("material has no diffuse texture")

// Texture is an uploaded texture together with the sampler it is read through.
type Texture struct {
	Texture *renderer.Resource
	View    *renderer.Resource
	Sampler *renderer.Resource
}

// Valid reports whether the texture has a view and a sampler to bind.
func (t Texture) Valid() bool {
	return t.View != nil && t.Sampler != nil
}

// TextureSource uploads imported textures to the device. loader.Registry implements it with a cache, so
// materials that share a texture file share one GPU texture.
type TextureSource interface {
	// Texture returns the GPU texture for an imported texture, uploading it on first use.
	//
	// Parameters:
	//   - tex: the imported texture
	//   - scope: disambiguates embedded textures, typically the model path
	//
	// Returns:
	//   - Texture: the uploaded texture
	//   - error: a decode or upload error
	Texture(tex *common.ImportedTexture, scope string) (Texture, error)
}

// material is the implementation of the Material interface.
type material struct {
	name            string
	diffuseTexture  *common.ImportedTexture
	specularTexture *common.ImportedTexture

	diffuse          Texture
	specular         Texture
	specularFallback bool
	resolved         bool
}

// Material pairs a diffuse texture with an optional specular texture.
//
// Texture references are set at load time. Resolve uploads them through a TextureSource and fixes the pair
// the draw binds: the diffuse texture is mandatory, while a specular texture that is absent or fails to load
// is replaced by the diffuse texture and its sampler.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// DiffuseTexture retrieves the diffuse texture data reference, or nil if none is set.
	//
	// Returns:
	//   - *common.ImportedTexture: the diffuse texture, or nil
	DiffuseTexture() *common.ImportedTexture

	// SpecularTexture retrieves the specular texture data reference, or nil if none is set.
	//
	// Returns:
	//   - *common.ImportedTexture: the specular texture, or nil
	SpecularTexture() *common.ImportedTexture

	// Resolve uploads the material's textures and applies the specular fallback.
	//
	// Parameters:
	//   - src: the texture source to upload through
	//   - scope: disambiguates embedded textures, typically the model path
	//
	// Returns:
	//   - error: ErrMissingDiffuse, or a wrapped diffuse upload error
	Resolve(src TextureSource, scope string) error

	// Resolved reports whether Resolve has succeeded.
	Resolved() bool

	// Diffuse returns the resolved diffuse texture.
	Diffuse() Texture

	// Specular returns the resolved specular texture, which is the diffuse texture after a fallback.
	Specular() Texture

	// SpecularFallback reports whether the diffuse texture stands in for the specular texture.
	SpecularFallback() bool

	// Binding builds the descriptor bindings of a draw that uses this material.
	//
	// Parameters:
	//   - uniform: the draw's uniform buffer
	//
	// Returns:
	//   - renderer.DescriptorBinding: the uniform buffer plus both texture and sampler pairs
	Binding(uniform *renderer.Resource) renderer.DescriptorBinding
}

var _ Material = &material{}

// NewMaterial creates a new Material instance configured with the provided options.
//
// Parameters:
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
func NewMaterial(options ...MaterialBuilderOption) Material {
	m := &material{}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// FromImported creates a Material from the texture references of an imported material.
//
// Parameters:
//   - imported: the material as read from the model file
//
// Returns:
//   - Material: a new, unresolved Material
func FromImported(imported common.ImportedMaterial) Material {
	return NewMaterial(
		WithName(imported.Name),
		WithDiffuseTexture(imported.DiffuseTexture),
		WithSpecularTexture(imported.SpecularTexture),
	)
}

func (m *material) Name() string {
	return m.name
}

func (m *material) DiffuseTexture() *common.ImportedTexture {
	return m.diffuseTexture
}

func (m *material) SpecularTexture() *common.ImportedTexture {
	return m.specularTexture
}

func (m *material) Resolve(src TextureSource, scope string) error {
	if m.diffuseTexture == nil {
		return fmt.Errorf("material %q: %w", m.name, ErrMissingDiffuse)
	}
	diffuse, err := src.Texture(m.diffuseTexture, scope)
	if err != nil {
		return fmt.Errorf("material %q: diffuse texture %q: %w", m.name, m.diffuseTexture.Key(scope), err)
	}
	if !diffuse.Valid() {
		return fmt.Errorf("material %q: %w", m.name, ErrMissingDiffuse)
	}

	specular := diffuse
	fallback := true
	if m.specularTexture != nil {
		tex, err := src.Texture(m.specularTexture, scope)
		switch {
		case err != nil:
			log.Printf("[Material] %s: specular texture %q unavailable, using diffuse: %v", m.name, m.specularTexture.Key(scope), err)
		case tex.Valid():
			specular, fallback = tex, false
		}
	}

	m.diffuse, m.specular, m.specularFallback = diffuse, specular, fallback
	m.resolved = true
	return nil
}

func (m *material) Resolved() bool {
	return m.resolved
}

func (m *material) Diffuse() Texture {
	return m.diffuse
}

func (m *material) Specular() Texture {
	return m.specular
}

func (m *material) SpecularFallback() bool {
	return m.specularFallback
}

func (m *material) Binding(uniform *renderer.Resource) renderer.DescriptorBinding {
	return renderer.DescriptorBinding{
		Uniform:         uniform,
		Diffuse:         m.diffuse.View,
		DiffuseSampler:  m.diffuse.Sampler,
		Specular:        m.specular.View,
		SpecularSampler: m.specular.Sampler,
	}
}
