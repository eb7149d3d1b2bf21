package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-bench/engine/model"
)

// loaderBackend defines the generic interface for importing models from files or streams.
// Concrete implementations (e.g., gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load performs a full model import from the given file path: meshes, node tree, bones, clips and
	// material texture references.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *model.ImportedModel: the imported model data
	//   - error: error if loading fails
	Load(path string) (*model.ImportedModel, error)

	// LoadReader imports a model from a reader stream. External resources are resolved relative to the
	// directory of name.
	//
	// Parameters:
	//   - r: the reader providing model data
	//   - name: the name the model is cached under
	//
	// Returns:
	//   - *model.ImportedModel: the imported model data
	//   - error: error if loading fails
	LoadReader(r io.Reader, name string) (*model.ImportedModel, error)

	// Extensions lists the lower-case file extensions the backend accepts.
	Extensions() []string
}
