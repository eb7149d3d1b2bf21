package scene

import (
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/loader"
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, ok := ParseKind(" Simple ")
	assert.True(t, ok)
	assert.Equal(t, KindSimple, k)

	k, ok = ParseKind("complex")
	assert.True(t, ok)
	assert.Equal(t, KindComplex, k)

	_, ok = ParseKind("huge")
	assert.False(t, ok)
	assert.Equal(t, "simple", KindSimple.String())
}

func TestScene_ComplexPlacements(t *testing.T) {
	s := NewScene(KindComplex, WithModelCount(6))
	placements := s.Placements()
	require.Len(t, placements, len(DefaultCatalog)+6)

	for i := range DefaultCatalog {
		assert.Equal(t, float32(2*(i+1)), placements[i].Position[0])
		assert.Equal(t, DefaultCatalog[i].Scale, placements[i].Scale)
		assert.Equal(t, filepath.Join(DefaultResourceDir, DefaultCatalog[i].ModelPath), placements[i].ModelPath)
	}
	for i := 0; i < 6; i++ {
		p := placements[len(DefaultCatalog)+i]
		assert.Equal(t, float32(2*i), p.Position[0])
		assert.Equal(t, filepath.Join(DefaultResourceDir, DefaultCatalog[i%4].ModelPath), p.ModelPath)
		assert.Equal(t, 0, p.AnimationIndex)
	}

	// The catalog itself is never modified.
	assert.Zero(t, DefaultCatalog[0].Position[0])
}

func TestScene_SimplePlacement(t *testing.T) {
	placements := NewScene(KindSimple, WithModelCount(50)).Placements()
	require.Len(t, placements, 1)
	assert.Equal(t, StaticAnimation, placements[0].AnimationIndex)
	assert.Equal(t, common.Vec3{}, placements[0].Position)
}

func TestScene_EmptyCatalog(t *testing.T) {
	assert.Empty(t, NewScene(KindComplex, WithCatalog(nil)).Placements())
}

func TestWithModelCount_ClampsNegative(t *testing.T) {
	assert.Len(t, NewScene(KindComplex, WithModelCount(-3)).Placements(), len(DefaultCatalog))
}

func animatedSource() *model.ImportedModel {
	s := &animator.Skeleton{
		Nodes:         []animator.Node{{Name: "root", Transform: common.Identity()}},
		GlobalInverse: common.Identity(),
	}
	s.AddBone("root", common.Identity())
	s.Clips = []*animator.Clip{{
		Name:           "idle",
		Duration:       1,
		TicksPerSecond: 1,
		Channels: map[string]*animator.Channel{
			"root": {
				Node:         "root",
				Translations: []animator.VectorKey{{Time: 0}},
				Rotations:    []animator.QuatKey{{Time: 0, Value: common.IdentityQuat}},
				Scales:       []animator.VectorKey{{Time: 0, Value: common.Vec3{1, 1, 1}}},
			},
		},
	}}
	return &model.ImportedModel{Name: "walker", Path: "walker.glb", Skeleton: s}
}

func staticSource() *model.ImportedModel {
	return &model.ImportedModel{Name: "rock", Path: "rock.glb", Skeleton: &animator.Skeleton{GlobalInverse: common.Identity()}}
}

func TestScene_Instantiate(t *testing.T) {
	registry := loader.NewRegistry(loader.BackendTypeGLTF,
		loader.WithModel("walker.glb", animatedSource()),
		loader.WithModel("rock.glb", staticSource()),
	)
	catalog := []Placement{
		{Scale: common.Vec3{1, 1, 1}, ModelPath: "walker.glb"},
		{Scale: common.Vec3{2, 2, 2}, ModelPath: "rock.glb", TexturePath: "rock.png"},
	}

	s := NewScene(KindComplex, WithCatalog(catalog), WithResourceDir(""), WithModelCount(2))
	models, err := Instantiate(registry, s.Placements())
	require.NoError(t, err)
	require.Len(t, models, 4)

	assert.Equal(t, "walker#0", models[0].Name())
	assert.Equal(t, animator.BackendTypeSkeletal, models[0].Animator().BackendType())
	assert.Equal(t, animator.BackendTypeSimple, models[1].Animator().BackendType())
	assert.Equal(t, common.Vec3{2, 2, 2}, models[1].Scale())
	assert.Equal(t, float32(4), models[1].Position()[0])

	// Instances of one path share the parsed scene.
	assert.Same(t, models[0].Source(), models[2].Source())
}

func TestScene_InstantiateSimpleSpinsAnimatedModel(t *testing.T) {
	registry := loader.NewRegistry(loader.BackendTypeGLTF, loader.WithModel("walker.glb", animatedSource()))
	s := NewScene(KindSimple, WithCatalog([]Placement{{Scale: common.Vec3{1, 1, 1}, ModelPath: "walker.glb"}}), WithResourceDir(""))

	models, err := Instantiate(registry, s.Placements())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, animator.BackendTypeSimple, models[0].Animator().BackendType())
}

func TestScene_InstantiateRejectsAnimationPastMax(t *testing.T) {
	registry := loader.NewRegistry(loader.BackendTypeGLTF, loader.WithModel("walker.glb", animatedSource()))
	catalog := []Placement{{Scale: common.Vec3{1, 1, 1}, ModelPath: "walker.glb", AnimationIndex: 1}}

	_, err := Instantiate(registry, NewScene(KindComplex, WithCatalog(catalog), WithResourceDir(""), WithModelCount(0)).Placements())
	assert.ErrorContains(t, err, "animation index 1")
}

func TestScene_InstantiateLoadError(t *testing.T) {
	registry := loader.NewRegistry(loader.BackendTypeGLTF)
	catalog := []Placement{{Scale: common.Vec3{1, 1, 1}, ModelPath: filepath.Join(t.TempDir(), "missing.glb")}}

	_, err := Instantiate(registry, NewScene(KindComplex, WithCatalog(catalog), WithResourceDir(""), WithModelCount(0)).Placements())
	assert.ErrorContains(t, err, "placement 0")
}
