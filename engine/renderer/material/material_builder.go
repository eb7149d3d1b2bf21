package material

import (
	"github.com/Carmen-Shannon/oxy-bench/common"
)

// MaterialBuilderOption is a function that configures a material instance during construction.
type MaterialBuilderOption func(*material)

// WithName is an option builder that sets the name of the material.
//
// Parameters:
//   - name: the identifier for the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option to a material
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.name = name
	}
}

// WithDiffuseTexture is an option builder that sets the diffuse texture reference.
//
// Parameters:
//   - tex: the imported diffuse texture
//
// Returns:
//   - MaterialBuilderOption: a function that applies the diffuse texture option to a material
func WithDiffuseTexture(tex *common.ImportedTexture) MaterialBuilderOption {
	return func(m *material) {
		m.diffuseTexture = tex
	}
}

// WithSpecularTexture is an option builder that sets the specular texture reference.
// A nil texture makes the diffuse texture stand in for it.
//
// Parameters:
//   - tex: the imported specular texture
//
// Returns:
//   - MaterialBuilderOption: a function that applies the specular texture option to a material
func WithSpecularTexture(tex *common.ImportedTexture) MaterialBuilderOption {
	return func(m *material) {
		m.specularTexture = tex
	}
}
