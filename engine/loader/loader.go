package loader

import (
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/material"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// ErrNoRendererBackend is returned by Texture when the registry was built without a renderer backend.
var ErrNoRendererBackend = errors.New("registry has no renderer backend")

// registry is the implementation of the Registry interface.
type registry struct {
	mu sync.RWMutex

	backend  loaderBackend
	renderer renderer.RendererBackend

	modelCache map[string]*model.ImportedModel

	// texMu serializes uploads so a texture shared by several materials is created once.
	texMu        sync.Mutex
	textureCache map[string]material.Texture
	textures     *renderer.ResourceRegistry
}

// Registry loads and caches parsed scenes and the GPU textures they reference.
//
// A session owns one Registry. Scenes are parsed once per path and shared by every model instance built from
// them, which also fixes their bone numbering. Textures are uploaded once per cache key and owned by the
// registry until Release, which must run after the device is idle and after every model using them is
// released.
type Registry interface {
	material.TextureSource

	// Load imports a model file and caches the result. A path that is already cached returns the cached
	// model. The backend must accept the file extension.
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - *model.ImportedModel: the loaded and cached model
	//   - error: error if loading fails
	Load(path string) (*model.ImportedModel, error)

	// LoadReader imports a model from a reader stream and caches it under name.
	//
	// Parameters:
	//   - name: the cache key, also used to resolve external resources relative to its directory
	//   - r: the reader providing model data
	//
	// Returns:
	//   - *model.ImportedModel: the loaded model
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (*model.ImportedModel, error)

	// Get retrieves a cached model by name. Returns nil if not found.
	Get(name string) *model.ImportedModel

	// Models returns a copy of the model cache.
	Models() map[string]*model.ImportedModel

	// TextureCount returns the number of cached GPU textures.
	TextureCount() int

	// Release destroys every cached texture and empties both caches.
	Release()
}

var _ Registry = &registry{}

// NewRegistry creates a new Registry with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of RegistryBuilderOption functions to configure the Registry
//
// Returns:
//   - Registry: a new Registry configured with the provided backend and options
func NewRegistry(backendType LoaderBackendType, options ...RegistryBuilderOption) Registry {
	r := &registry{
		modelCache:   make(map[string]*model.ImportedModel),
		textureCache: make(map[string]material.Texture),
		textures:     renderer.NewTextureResourceRegistry("texture cache"),
	}

	switch backendType {
	case BackendTypeGLTF:
		r.backend = newGLTFLoaderBackend()
	}

	for _, option := range options {
		option(r)
	}
	return r
}

func (r *registry) Load(path string) (*model.ImportedModel, error) {
	if cached := r.Get(path); cached != nil {
		return cached, nil
	}

	if err := r.checkExtension(path); err != nil {
		return nil, err
	}

	imported, err := r.backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return r.store(path, imported), nil
}

func (r *registry) LoadReader(name string, rd io.Reader) (*model.ImportedModel, error) {
	if cached := r.Get(name); cached != nil {
		return cached, nil
	}
	if r.backend == nil {
		return nil, fmt.Errorf("no loader backend configured")
	}

	imported, err := r.backend.LoadReader(rd, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	return r.store(name, imported), nil
}

// store caches a model unless a concurrent load stored one first, in which case that one wins so every
// caller shares the same bone numbering.
func (r *registry) store(key string, imported *model.ImportedModel) *model.ImportedModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.modelCache[key]; ok {
		return existing
	}
	r.modelCache[key] = imported
	log.Printf("[Loader] loaded %q: %d meshes, %d indices, %d bones, %d clips",
		imported.Name, len(imported.Meshes), imported.IndexCount(), imported.Skeleton.BoneCount(), clipCount(imported))
	return imported
}

func (r *registry) Get(name string) *model.ImportedModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modelCache[name]
}

func (r *registry) Models() map[string]*model.ImportedModel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*model.ImportedModel, len(r.modelCache))
	for k, v := range r.modelCache {
		result[k] = v
	}
	return result
}

// Texture returns the cached GPU texture for tex, decoding and uploading it on first use.
func (r *registry) Texture(tex *common.ImportedTexture, scope string) (material.Texture, error) {
	if tex == nil {
		return material.Texture{}, fmt.Errorf("texture is nil")
	}
	if r.renderer == nil {
		return material.Texture{}, ErrNoRendererBackend
	}

	key := tex.Key(scope)
	r.texMu.Lock()
	defer r.texMu.Unlock()
	if cached, ok := r.textureCache[key]; ok {
		return cached, nil
	}

	staging, err := tex.Decode()
	if err != nil {
		return material.Texture{}, fmt.Errorf("texture %s: %w", key, err)
	}
	texture, view, err := r.renderer.CreateTexture(key, staging)
	if err != nil {
		return material.Texture{}, fmt.Errorf("texture %s: %w", key, err)
	}
	sampler, err := r.renderer.CreateSampler(key)
	if err != nil {
		view.Destroy()
		texture.Destroy()
		return material.Texture{}, fmt.Errorf("sampler %s: %w", key, err)
	}
	if err := r.textures.Adopt(texture, view, sampler); err != nil {
		sampler.Destroy()
		view.Destroy()
		texture.Destroy()
		return material.Texture{}, err
	}

	t := material.Texture{Texture: texture, View: view, Sampler: sampler}
	r.textureCache[key] = t
	return t, nil
}

func (r *registry) TextureCount() int {
	r.texMu.Lock()
	defer r.texMu.Unlock()
	return len(r.textureCache)
}

func (r *registry) Release() {
	r.texMu.Lock()
	released := r.textures.Release()
	r.textureCache = make(map[string]material.Texture)
	r.texMu.Unlock()

	r.mu.Lock()
	r.modelCache = make(map[string]*model.ImportedModel)
	r.mu.Unlock()

	if len(released) > 0 {
		log.Printf("[Loader] released %d texture resources", len(released))
	}
}

// checkExtension rejects files the backend cannot read.
func (r *registry) checkExtension(path string) error {
	if r.backend == nil {
		return fmt.Errorf("no loader backend configured")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(r.backend.Extensions(), ext) {
		return fmt.Errorf("unsupported model format: %q", ext)
	}
	return nil
}

func clipCount(m *model.ImportedModel) int {
	if m.Skeleton == nil {
		return 0
	}
	return len(m.Skeleton.Clips)
}
