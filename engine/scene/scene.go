package scene

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/loader"
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
)

// Kind selects which placement list a Scene composes.
type Kind int

const (
	// KindComplex places every catalog model once and then ModelCount more instances cycling through it.
	KindComplex Kind = iota

	// KindSimple places the first catalog model once, static and rotating.
	KindSimple
)

// StaticAnimation is the AnimationIndex of a placement that plays no clip.
const StaticAnimation = -1

// DefaultModelCount is the number of extra instances of the complex scene.
const DefaultModelCount = 100

// DefaultResourceDir is the directory catalog paths are relative to.
const DefaultResourceDir = "resources"

// RotationSpeed is the spin rate of static placements in radians per second.
const RotationSpeed = 1

// String returns the name ParseKind accepts.
func (k Kind) String() string {
	switch k {
	case KindComplex:
		return "complex"
	case KindSimple:
		return "simple"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a scene name to its Kind. Matching is case-insensitive.
//
// Parameters:
//   - name: "complex" or "simple"
//
// Returns:
//   - Kind: the parsed kind
//   - bool: false when the name is unknown
func ParseKind(name string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "complex":
		return KindComplex, true
	case "simple":
		return KindSimple, true
	}
	return KindComplex, false
}

// Placement describes one model instance to draw.
type Placement struct {
	Position common.Vec3
	Scale    common.Vec3

	// ModelPath is the glTF or GLB file to load.
	ModelPath string

	// TexturePath replaces the imported materials with one diffuse texture file when set.
	TexturePath string

	// AnimationIndex is the clip to play, or StaticAnimation.
	AnimationIndex int

	// MaxAnimationIndex is the highest clip index the placement accepts.
	MaxAnimationIndex int
}

// DefaultCatalog lists the four model types of the complex scene. Paths are relative to the resource directory.
var DefaultCatalog = []Placement{
	{
		Scale:       common.Vec3{1, 1, 1},
		ModelPath:   "chimp/chimp.glb",
		TexturePath: "chimp/chimp_diffuse.jpg",
	},
	{
		Scale:       common.Vec3{0.0025, 0.0025, 0.0025},
		ModelPath:   "bird/bird.glb",
		TexturePath: "bird/Fogel_Mat_Diffuse_Color.png",
	},
	{
		Scale:       common.Vec3{0.015, 0.015, 0.015},
		ModelPath:   "crocodile/crocodile.glb",
		TexturePath: "crocodile/crocodile.jpg",
	},
	{
		Scale:       common.Vec3{0.015, 0.015, 0.015},
		ModelPath:   "shetlandponyamber/ShetlandPonyAmberM.glb",
		TexturePath: "shetlandponyamber/shetlandponyamber.png",
	},
}

// scene is the implementation of the Scene interface.
type scene struct {
	kind        Kind
	modelCount  int
	resourceDir string
	catalog     []Placement
}

// Scene composes the flat placement list the engine draws. A Scene holds no device resources.
type Scene interface {
	// Kind returns the scene kind.
	Kind() Kind

	// Placements builds the placement list. Paths are joined with the resource directory.
	//
	// Returns:
	//   - []Placement: the placements in draw order
	Placements() []Placement
}

var _ Scene = &scene{}

// NewScene creates a Scene of the given kind configured with the provided options.
//
// Parameters:
//   - kind: the scene kind
//   - options: variadic list of SceneBuilderOption functions to configure the scene
//
// Returns:
//   - Scene: the new scene
func NewScene(kind Kind, options ...SceneBuilderOption) Scene {
	s := &scene{
		kind:        kind,
		modelCount:  DefaultModelCount,
		resourceDir: DefaultResourceDir,
		catalog:     DefaultCatalog,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *scene) Kind() Kind {
	return s.kind
}

func (s *scene) Placements() []Placement {
	if len(s.catalog) == 0 {
		return nil
	}

	if s.kind == KindSimple {
		p := s.resolve(s.catalog[0])
		p.Position = common.Vec3{}
		p.AnimationIndex = StaticAnimation
		return []Placement{p}
	}

	placements := make([]Placement, 0, len(s.catalog)+s.modelCount)
	for i, info := range s.catalog {
		p := s.resolve(info)
		p.Position[0] += float32(2 * (i + 1))
		placements = append(placements, p)
	}
	for i := 0; i < s.modelCount; i++ {
		p := s.resolve(s.catalog[i%len(s.catalog)])
		p.Position[0] += float32(2 * i)
		placements = append(placements, p)
	}
	return placements
}

// resolve joins the placement's paths with the resource directory.
func (s *scene) resolve(p Placement) Placement {
	if s.resourceDir != "" {
		p.ModelPath = filepath.Join(s.resourceDir, p.ModelPath)
		if p.TexturePath != "" {
			p.TexturePath = filepath.Join(s.resourceDir, p.TexturePath)
		}
	}
	return p
}

// Instantiate loads every placement through the registry and builds one model per placement.
// Models sharing a path share one parsed scene. The returned models are not initialized.
//
// Parameters:
//   - registry: the session's scene and texture cache
//   - placements: the placements, in draw order
//
// Returns:
//   - []model.Model: one model per placement, in draw order
//   - error: a wrapped load error or an animation index out of range
func Instantiate(registry loader.Registry, placements []Placement) ([]model.Model, error) {
	models := make([]model.Model, 0, len(placements))
	for i, p := range placements {
		source, err := registry.Load(p.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("placement %d: %w", i, err)
		}

		anim, err := animatorFor(p, source)
		if err != nil {
			return nil, fmt.Errorf("placement %d (%s): %w", i, p.ModelPath, err)
		}

		options := []model.ModelBuilderOption{
			model.WithName(fmt.Sprintf("%s#%d", source.Name, i)),
			model.WithPosition(p.Position),
			model.WithScale(p.Scale),
			model.WithAnimator(anim),
		}
		if p.TexturePath != "" {
			options = append(options, model.WithTextures(&common.ImportedTexture{Name: "diffuse", Path: p.TexturePath}, nil))
		}
		models = append(models, model.NewModel(source, options...))
	}
	return models, nil
}

// animatorFor plays the placement's clip on animated sources. Static placements and sources without a clip
// spin instead.
func animatorFor(p Placement, source *model.ImportedModel) (animator.Animator, error) {
	if p.AnimationIndex == StaticAnimation || !source.Animated() {
		return animator.NewAnimator(animator.BackendTypeSimple,
			animator.WithRotation(animator.DefaultRotationAxis, RotationSpeed))
	}
	if p.AnimationIndex < 0 || p.AnimationIndex > p.MaxAnimationIndex {
		return nil, fmt.Errorf("animation index %d outside [0, %d]", p.AnimationIndex, p.MaxAnimationIndex)
	}
	return animator.NewAnimator(animator.BackendTypeSkeletal, animator.WithSkeleton(source.Skeleton, p.AnimationIndex))
}
