package model

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/material"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticSurface never resizes or closes.
type staticSurface struct{}

func (staticSurface) FramebufferSize() (int, int) { return 800, 600 }
func (staticSurface) WaitEvents()                 {}
func (staticSurface) ShouldClose() bool           { return false }

// eyeCamera is an identity camera placed at a fixed position.
type eyeCamera struct{ pos common.Vec3 }

func (c eyeCamera) ViewMatrix() common.Mat4                     { return common.Identity() }
func (c eyeCamera) ProjectionMatrix(float32, bool) common.Mat4 { return common.Identity() }
func (c eyeCamera) Position() common.Vec3                      { return c.pos }

// backendTextures uploads a 1x1 texture per key through the backend and caches it.
type backendTextures struct {
	backend  renderer.RendererBackend
	registry *renderer.ResourceRegistry
	cache    map[string]material.Texture
}

func newBackendTextures(backend renderer.RendererBackend) *backendTextures {
	return &backendTextures{
		backend:  backend,
		registry: renderer.NewTextureResourceRegistry("test textures"),
		cache:    make(map[string]material.Texture),
	}
}

func (s *backendTextures) Texture(tex *common.ImportedTexture, scope string) (material.Texture, error) {
	key := tex.Key(scope)
	if t, ok := s.cache[key]; ok {
		return t, nil
	}
	texture, view, err := s.backend.CreateTexture(key, common.TextureStagingData{Pixels: make([]byte, 4), Width: 1, Height: 1})
	if err != nil {
		return material.Texture{}, err
	}
	sampler, err := s.backend.CreateSampler(key)
	if err != nil {
		return material.Texture{}, err
	}
	if err := s.registry.Adopt(texture, view, sampler); err != nil {
		return material.Texture{}, err
	}
	t := material.Texture{Texture: texture, View: view, Sampler: sampler}
	s.cache[key] = t
	return t, nil
}

func triangle(boneWeights bool) ImportedMesh {
	vertices := []GPUVertex{
		{Position: [3]float32{0, 0, 0}, TexCoord: [2]float32{0, 0}},
		{Position: [3]float32{1, 0, 0}, TexCoord: [2]float32{1, 0}},
		{Position: [3]float32{0, 1, 0}, TexCoord: [2]float32{0, 1}},
	}
	if boneWeights {
		for i := range vertices {
			vertices[i].AddBoneData(i%2, 1)
		}
	}
	return ImportedMesh{Name: "tri", Vertices: vertices, Indices: []uint32{0, 1, 2}, MaterialIndex: 0}
}

// growingSkeleton is root -> child where the root scales from 1 to 2 over 10 seconds.
func growingSkeleton() *animator.Skeleton {
	s := &animator.Skeleton{
		Nodes: []animator.Node{
			{Name: "root", Transform: common.Identity(), Children: []int{1}},
			{Name: "child", Transform: common.Identity()},
		},
		GlobalInverse: common.Identity(),
	}
	s.AddBone("root", common.Identity())
	s.AddBone("child", common.Identity())
	s.Clips = []*animator.Clip{{
		Name:           "grow",
		Duration:       10,
		TicksPerSecond: 1,
		Channels: map[string]*animator.Channel{
			"root": {
				Node:         "root",
				Translations: []animator.VectorKey{{Time: 0}},
				Rotations:    []animator.QuatKey{{Time: 0, Value: common.IdentityQuat}},
				Scales: []animator.VectorKey{
					{Time: 0, Value: common.Vec3{1, 1, 1}},
					{Time: 10, Value: common.Vec3{2, 2, 2}},
				},
			},
		},
	}}
	return s
}

func skinnedSource() *ImportedModel {
	return &ImportedModel{
		Name:      "grower",
		Path:      "grower.glb",
		Meshes:    []ImportedMesh{triangle(true)},
		Skeleton:  growingSkeleton(),
		Materials: []common.ImportedMaterial{{Name: "skin", DiffuseTexture: &common.ImportedTexture{Name: "diffuse"}}},
	}
}

func newHeadlessRenderer(t *testing.T) (renderer.Renderer, *renderer.HeadlessRendererBackend) {
	t.Helper()
	backend := renderer.NewHeadlessRendererBackend()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, nil,
		renderer.WithBackend(backend),
		renderer.WithSurface(staticSurface{}),
		renderer.WithWorkers(2),
	)
	require.NoError(t, err)
	return r, backend
}

func readFloat(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func TestGPUTypes_Layout(t *testing.T) {
	var v GPUVertex
	assert.Equal(t, 96, v.Size())
	assert.Len(t, v.Marshal(), 96)

	var u GPUUniformData
	assert.Equal(t, UniformDataSize, u.Size())
	assert.Equal(t, 6416, UniformDataSize)

	var p GPUPushConstants
	assert.Equal(t, renderer.PushConstantSize, p.Size())
	assert.Len(t, p.Marshal(), renderer.PushConstantSize)
}

func TestGPUVertex_MarshalOffsets(t *testing.T) {
	v := GPUVertex{Position: [3]float32{1, 2, 3}, Normal: [3]float32{0, 1, 0}, TexCoord: [2]float32{0.25, 0.75}}
	v.AddBoneData(7, 0.5)
	buf := v.Marshal()

	assert.Equal(t, float32(3), readFloat(buf, 8))
	assert.Equal(t, float32(1), readFloat(buf, 16))
	assert.Equal(t, float32(0.75), readFloat(buf, 28))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[32:]))
	assert.Equal(t, float32(0.5), readFloat(buf, 64))

	all := MarshalVertices([]GPUVertex{{}, v})
	assert.Equal(t, buf, all[96:])
}

func TestGPUVertex_AddBoneDataFillsEightSlotsThenPanics(t *testing.T) {
	var v GPUVertex
	for i := 0; i < MaxBoneInfluences; i++ {
		v.AddBoneData(i+10, 0.125)
	}
	for i := 0; i < MaxBoneInfluences; i++ {
		assert.Equal(t, uint32(i+10), v.BoneIDs[i])
		assert.Equal(t, float32(0.125), v.Weights[i])
	}

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		var lv *common.LogicViolationError
		assert.True(t, errors.As(err, &lv))
	}()
	v.AddBoneData(99, 0.1)
}

func TestGPUUniformData_ViewPosFollowsBones(t *testing.T) {
	u := GPUUniformData{ViewPos: [4]float32{4, 5, 6, 1}}
	u.Bones[animator.MaxBones-1] = common.Scaling(common.Vec3{3, 3, 3})
	buf := u.Marshal()

	assert.Equal(t, float32(3), readFloat(buf, (animator.MaxBones-1)*64))
	assert.Equal(t, float32(4), readFloat(buf, 6400))
	assert.Equal(t, float32(6), readFloat(buf, 6408))
}

func TestNewModel_PlacementMatrix(t *testing.T) {
	m := NewModel(skinnedSource(), WithPosition(common.Vec3{2, 0, -1}), WithUniformScale(0.5))
	p := m.PlacementMatrix()

	assert.Equal(t, "grower", m.Name())
	assert.Equal(t, float32(0.5), p[0])
	assert.Equal(t, float32(0.5), p[10])
	assert.Equal(t, float32(2), p[12])
	assert.Equal(t, float32(-1), p[14])
	assert.False(t, m.Initialized())
}

func TestRecordDraw_RequiresInit(t *testing.T) {
	m := NewModel(skinnedSource())
	err := m.RecordDraw(nil, &renderer.FrameContext{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestRecordDraw_WritesBonesAndViewPosition(t *testing.T) {
	r, backend := newHeadlessRenderer(t)
	textures := newBackendTextures(backend)

	source := skinnedSource()
	anim, err := animator.NewAnimator(animator.BackendTypeSkeletal, animator.WithSkeleton(source.Skeleton, 0))
	require.NoError(t, err)
	m := NewModel(source, WithAnimator(anim))
	require.NoError(t, m.Init(backend, textures, r.FramesInFlight()))
	assert.True(t, m.Initialized())
	assert.Equal(t, 1, m.MeshCount())
	// vertices, indices and one uniform buffer per frame slot
	assert.Equal(t, 2+r.FramesInFlight(), len(m.Registry().Get(renderer.ResourceKindBuffer)))

	require.NoError(t, r.RenderFrame(eyeCamera{pos: common.Vec3{1, 2, 3}}, 5, []renderer.Drawable{m}))

	ubo := backend.BufferContents(m.UniformBuffer(0))
	require.Len(t, ubo, UniformDataSize)
	assert.InDelta(t, 1.5, readFloat(ubo, 0), 1e-5)
	assert.InDelta(t, 1.5, readFloat(ubo, 64+20), 1e-5)
	// unused bone slots stay identity
	assert.Equal(t, float32(1), readFloat(ubo, 2*64))
	assert.Equal(t, float32(1), readFloat(ubo, 6400))
	assert.Equal(t, float32(2), readFloat(ubo, 6404))
	assert.Equal(t, float32(3), readFloat(ubo, 6408))

	require.NoError(t, r.WaitIdle())
	m.Release()
	m.Release()
	assert.False(t, m.Initialized())
	textures.registry.Release()
	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
	assert.Zero(t, backend.LiveResources(renderer.ResourceKindBuffer))
	assert.Zero(t, backend.LiveResources(renderer.ResourceKindDescriptorPool))
}

func TestRecordDraw_StaticModelUsesIdentityBones(t *testing.T) {
	r, backend := newHeadlessRenderer(t)
	textures := newBackendTextures(backend)

	source := skinnedSource()
	source.Meshes = []ImportedMesh{triangle(false)}
	m := NewModel(source, WithTextures(&common.ImportedTexture{Path: "override.png"}, nil))
	require.NoError(t, m.Init(backend, textures, r.FramesInFlight()))
	require.Len(t, m.Materials(), 1)
	assert.True(t, m.Materials()[0].SpecularFallback())

	frames := r.FramesInFlight() + 1
	for i := 0; i < frames; i++ {
		require.NoError(t, r.RenderFrame(eyeCamera{}, float32(i), []renderer.Drawable{m}))
	}
	for slot := 0; slot < r.FramesInFlight(); slot++ {
		ubo := backend.BufferContents(m.UniformBuffer(slot))
		assert.Equal(t, float32(1), readFloat(ubo, 0))
		assert.Equal(t, float32(0), readFloat(ubo, 4))
	}

	require.NoError(t, r.WaitIdle())
	m.Release()
	textures.registry.Release()
	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestInit_MissingDiffuseReleasesPartialResources(t *testing.T) {
	r, backend := newHeadlessRenderer(t)
	textures := newBackendTextures(backend)
	before := backend.LiveResources(renderer.ResourceKindBuffer)

	source := skinnedSource()
	bare := triangle(false)
	bare.MaterialIndex = -1
	source.Meshes = append(source.Meshes, bare)

	m := NewModel(source)
	err := m.Init(backend, textures, r.FramesInFlight())
	assert.ErrorIs(t, err, material.ErrMissingDiffuse)
	assert.False(t, m.Initialized())
	assert.Equal(t, before, backend.LiveResources(renderer.ResourceKindBuffer))

	textures.registry.Release()
	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
}

func TestInit_SkipsEmptyMeshes(t *testing.T) {
	r, backend := newHeadlessRenderer(t)
	textures := newBackendTextures(backend)

	source := skinnedSource()
	source.Meshes = append(source.Meshes, ImportedMesh{Name: "empty", MaterialIndex: 0})
	m := NewModel(source)
	require.NoError(t, m.Init(backend, textures, r.FramesInFlight()))
	assert.Equal(t, 1, m.MeshCount())
	assert.Equal(t, 3, source.IndexCount())

	m.Release()
	textures.registry.Release()
	require.NoError(t, r.Destroy())
	assert.Empty(t, backend.Violations())
}
