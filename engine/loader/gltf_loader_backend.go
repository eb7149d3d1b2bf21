package loader

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-bench/engine/model"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct{}

// gltfLoaderBackend is a loaderBackend implementation for glTF 2.0 and GLB files.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend() gltfLoaderBackend {
	return &gltfLoaderBackendImpl{}
}

func (b *gltfLoaderBackendImpl) Load(path string) (*model.ImportedModel, error) {
	file, err := parseGLTFFile(path)
	if err != nil {
		return nil, err
	}
	return importGLTF(file, path)
}

func (b *gltfLoaderBackendImpl) LoadReader(r io.Reader, name string) (*model.ImportedModel, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	file, err := parseGLTFBytes(data, filepath.Dir(name))
	if err != nil {
		return nil, err
	}
	return importGLTF(file, name)
}

func (b *gltfLoaderBackendImpl) Extensions() []string {
	return []string{".gltf", ".glb"}
}
