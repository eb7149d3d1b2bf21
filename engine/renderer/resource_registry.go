package renderer

import (
	"fmt"
	"slices"
	"sync"
)

// Teardown tables. Release walks a registry's table front to back, so each table lists
// dependents before the objects they were created from.
var (
	// swapchainTeardownOrder is the reverse of the swapchain rebuild order: command allocations first,
	// the swapchain itself last.
	swapchainTeardownOrder = []ResourceKind{
		ResourceKindCommandPool,
		ResourceKindFramebuffer,
		ResourceKindDepthView,
		ResourceKindDepthImage,
		ResourceKindColorView,
		ResourceKindColorImage,
		ResourceKindPipeline,
		ResourceKindPipelineLayout,
		ResourceKindRenderPass,
		ResourceKindSwapchainView,
		ResourceKindSwapchainImage,
		ResourceKindSwapchain,
	}

	// deviceTeardownOrder covers objects that live as long as the device.
	deviceTeardownOrder = []ResourceKind{
		ResourceKindDescriptorPool,
		ResourceKindSampler,
		ResourceKindTextureView,
		ResourceKindTexture,
		ResourceKindBuffer,
		ResourceKindSemaphore,
		ResourceKindFence,
		ResourceKindCommandPool,
	}

	// modelTeardownOrder covers a render model's descriptor pool (which frees its sets) and its buffers.
	modelTeardownOrder = []ResourceKind{
		ResourceKindDescriptorSet,
		ResourceKindDescriptorPool,
		ResourceKindBuffer,
	}

	// textureTeardownOrder covers cached textures.
	textureTeardownOrder = []ResourceKind{
		ResourceKindSampler,
		ResourceKindTextureView,
		ResourceKindTexture,
	}
)

// ResourceRegistry owns a set of resources and destroys them in a fixed kind order.
// Within one kind, resources are destroyed in reverse adoption order.
type ResourceRegistry struct {
	mu        sync.Mutex
	name      string
	order     []ResourceKind
	resources map[ResourceKind][]*Resource
}

// NewResourceRegistry creates an empty registry.
//
// Parameters:
//   - name: the owner name reported by Resource.Owner
//   - order: the teardown table; only kinds listed here can be adopted
//
// Returns:
//   - *ResourceRegistry: the registry
func NewResourceRegistry(name string, order []ResourceKind) *ResourceRegistry {
	return &ResourceRegistry{
		name:      name,
		order:     slices.Clone(order),
		resources: make(map[ResourceKind][]*Resource),
	}
}

// NewModelResourceRegistry creates a registry with the render model teardown table.
func NewModelResourceRegistry(name string) *ResourceRegistry {
	return NewResourceRegistry(name, modelTeardownOrder)
}

// NewTextureResourceRegistry creates a registry with the texture cache teardown table.
func NewTextureResourceRegistry(name string) *ResourceRegistry {
	return NewResourceRegistry(name, textureTeardownOrder)
}

// Name returns the registry name.
func (g *ResourceRegistry) Name() string {
	return g.name
}

// Adopt takes exclusive ownership of the given resources. Either all are adopted or none are.
//
// Parameters:
//   - resources: the resources to own; nil entries are skipped
//
// Returns:
//   - error: ErrResourceOwned if one already has an owner, ErrResourceDestroyed if one is destroyed,
//     or an error when a kind has no place in the teardown table
func (g *ResourceRegistry) Adopt(resources ...*Resource) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, res := range resources {
		if res == nil {
			continue
		}
		if !slices.Contains(g.order, res.kind) {
			return fmt.Errorf("registry %s cannot own %s", g.name, res)
		}
		if res.Destroyed() {
			return fmt.Errorf("adopt %s: %w", res, ErrResourceDestroyed)
		}
		if o := res.owner.Load(); o != nil {
			return fmt.Errorf("adopt %s into %s (owned by %s): %w", res, g.name, o.name, ErrResourceOwned)
		}
	}

	claimed := make([]*Resource, 0, len(resources))
	for _, res := range resources {
		if res == nil {
			continue
		}
		if !res.owner.CompareAndSwap(nil, g) {
			for _, c := range claimed {
				c.owner.Store(nil)
			}
			return fmt.Errorf("adopt %s into %s: %w", res, g.name, ErrResourceOwned)
		}
		claimed = append(claimed, res)
	}
	for _, res := range claimed {
		g.resources[res.kind] = append(g.resources[res.kind], res)
	}
	return nil
}

// Replace destroys an owned resource and adopts fresh in its place, so fresh keeps the teardown position of
// the resource it replaces.
//
// Parameters:
//   - old: a resource owned by this registry
//   - fresh: an unowned live resource of the same kind
//
// Returns:
//   - error: ErrResourceOwned if fresh has an owner, ErrResourceDestroyed if fresh is destroyed, or an error
//     when old is not owned here or the kinds differ
func (g *ResourceRegistry) Replace(old, fresh *Resource) error {
	g.mu.Lock()
	if old.owner.Load() != g {
		g.mu.Unlock()
		return fmt.Errorf("replace %s: not owned by %s", old, g.name)
	}
	if old.kind != fresh.kind {
		g.mu.Unlock()
		return fmt.Errorf("replace %s with %s: kinds differ", old, fresh)
	}
	if fresh.Destroyed() {
		g.mu.Unlock()
		return fmt.Errorf("replace with %s: %w", fresh, ErrResourceDestroyed)
	}
	if !fresh.owner.CompareAndSwap(nil, g) {
		g.mu.Unlock()
		return fmt.Errorf("replace with %s: %w", fresh, ErrResourceOwned)
	}
	list := g.resources[old.kind]
	if i := slices.Index(list, old); i >= 0 {
		list[i] = fresh
	} else {
		g.resources[old.kind] = append(list, fresh)
	}
	g.mu.Unlock()

	old.Destroy()
	return nil
}

// Get returns the owned resources of a kind in adoption order.
func (g *ResourceRegistry) Get(kind ResourceKind) []*Resource {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.resources[kind])
}

// Len returns the number of owned resources.
func (g *ResourceRegistry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, list := range g.resources {
		n += len(list)
	}
	return n
}

// Release destroys every owned resource in teardown order and empties the registry.
//
// Returns:
//   - []*Resource: the resources in the order they were destroyed
func (g *ResourceRegistry) Release() []*Resource {
	g.mu.Lock()
	defer g.mu.Unlock()

	var released []*Resource
	for _, kind := range g.order {
		list := g.resources[kind]
		for i := len(list) - 1; i >= 0; i-- {
			list[i].Destroy()
			released = append(released, list[i])
		}
		delete(g.resources, kind)
	}
	return released
}
