package scene

// SceneBuilderOption is a functional option for configuring a Scene.
type SceneBuilderOption func(*scene)

// WithModelCount sets how many extra instances the complex scene places. Negative values become 0.
//
// Parameters:
//   - n: the extra instance count
//
// Returns:
//   - SceneBuilderOption: a function that sets the model count
func WithModelCount(n int) SceneBuilderOption {
	return func(s *scene) {
		s.modelCount = max(n, 0)
	}
}

// WithResourceDir sets the directory catalog paths are joined with. An empty dir uses the paths as given.
//
// Parameters:
//   - dir: the resource directory
//
// Returns:
//   - SceneBuilderOption: a function that sets the resource directory
func WithResourceDir(dir string) SceneBuilderOption {
	return func(s *scene) {
		s.resourceDir = dir
	}
}

// WithCatalog replaces DefaultCatalog. The simple scene uses the first entry.
func WithCatalog(catalog []Placement) SceneBuilderOption {
	return func(s *scene) {
		s.catalog = catalog
	}
}
