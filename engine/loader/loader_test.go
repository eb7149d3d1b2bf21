package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gltfFixture assembles a glTF document and its single binary buffer.
type gltfFixture struct {
	bin       bytes.Buffer
	views     []map[string]any
	accessors []map[string]any
}

func (f *gltfFixture) view(data []byte) int {
	for f.bin.Len()%4 != 0 {
		f.bin.WriteByte(0)
	}
	off := f.bin.Len()
	f.bin.Write(data)
	f.views = append(f.views, map[string]any{"buffer": 0, "byteOffset": off, "byteLength": len(data)})
	return len(f.views) - 1
}

func (f *gltfFixture) accessor(componentType int, typ string, count int, data any) int {
	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, data); err != nil {
		panic(err)
	}
	f.accessors = append(f.accessors, map[string]any{
		"bufferView":    f.view(b.Bytes()),
		"componentType": componentType,
		"count":         count,
		"type":          typ,
	})
	return len(f.accessors) - 1
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < 4; i++ {
		img.Set(i%2, i/2, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// rigDocument is a two-joint rig with a skinned triangle, a static triangle under a translated node,
// one embedded diffuse texture, one external specular texture and a two-channel animation.
func rigDocument(t *testing.T) (map[string]any, []byte) {
	f := &gltfFixture{}
	tri := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}

	skinPos := f.accessor(gltfComponentFloat, gltfTypeVec3, 3, tri)
	joints0 := f.accessor(gltfComponentUnsignedByte, gltfTypeVec4, 3, []uint8{0, 1, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0})
	weights0 := f.accessor(gltfComponentFloat, gltfTypeVec4, 3, []float32{0.2, 0.2, 0.1, 0.1, 1, 0, 0, 0, 1, 0, 0, 0})
	joints1 := f.accessor(gltfComponentUnsignedByte, gltfTypeVec4, 3, []uint8{0, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0})
	weights1 := f.accessor(gltfComponentFloat, gltfTypeVec4, 3, []float32{0.1, 0.1, 0.1, 0.1, 0, 0, 0, 0, 0, 0, 0, 0})
	indices := f.accessor(gltfComponentUnsignedShort, gltfTypeScalar, 3, []uint16{0, 1, 2})

	staticPos := f.accessor(gltfComponentFloat, gltfTypeVec3, 3, tri)
	staticNormals := f.accessor(gltfComponentFloat, gltfTypeVec3, 3, []float32{0, 0, 1, 0, 0, 1, 0, 0, 1})

	ibm := f.accessor(gltfComponentFloat, gltfTypeMat4, 2, []common.Mat4{
		common.Identity(),
		common.Translation(common.Vec3{0, -1, 0}),
	})

	hipTimes := f.accessor(gltfComponentFloat, gltfTypeScalar, 2, []float32{0, 1})
	hipRotations := f.accessor(gltfComponentFloat, gltfTypeVec4, 2, []float32{0, 0, 0, 1, 0, 0.70710677, 0, 0.70710677})
	spineTimes := f.accessor(gltfComponentFloat, gltfTypeScalar, 2, []float32{0, 2})
	spineTranslations := f.accessor(gltfComponentFloat, gltfTypeVec3, 2, []float32{0, 1, 0, 0, 3, 0})

	imageView := f.view(pngBytes(t))

	doc := map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"name": "Scene", "nodes": []int{0, 4}}},
		"nodes": []any{
			map[string]any{"name": "Armature", "children": []int{1, 3}},
			map[string]any{"name": "Hip", "translation": []float32{0, 1, 0}, "children": []int{2}},
			map[string]any{"name": "Spine", "translation": []float32{0, 1, 0}},
			map[string]any{"name": "Body", "mesh": 0, "skin": 0},
			map[string]any{"name": "Prop", "mesh": 1, "translation": []float32{5, 0, 0}},
		},
		"meshes": []any{
			map[string]any{"name": "body", "primitives": []any{map[string]any{
				"attributes": map[string]int{
					"POSITION":  skinPos,
					"JOINTS_0":  joints0,
					"WEIGHTS_0": weights0,
					"JOINTS_1":  joints1,
					"WEIGHTS_1": weights1,
				},
				"indices":  indices,
				"material": 0,
			}}},
			map[string]any{"name": "prop", "primitives": []any{map[string]any{
				"attributes": map[string]int{"POSITION": staticPos, "NORMAL": staticNormals},
				"material":   0,
			}}},
		},
		"skins": []any{map[string]any{"joints": []int{2, 1}, "inverseBindMatrices": ibm}},
		"animations": []any{map[string]any{
			"name": "Walk",
			"channels": []any{
				map[string]any{"sampler": 0, "target": map[string]any{"node": 1, "path": "rotation"}},
				map[string]any{"sampler": 1, "target": map[string]any{"node": 2, "path": "translation"}},
			},
			"samplers": []any{
				map[string]any{"input": hipTimes, "output": hipRotations},
				map[string]any{"input": spineTimes, "output": spineTranslations},
			},
		}},
		"materials": []any{map[string]any{
			"name":                 "Skin",
			"pbrMetallicRoughness": map[string]any{"baseColorTexture": map[string]any{"index": 0}},
			"extensions": map[string]any{
				"KHR_materials_specular": map[string]any{"specularTexture": map[string]any{"index": 1}},
			},
		}},
		"textures": []any{map[string]any{"source": 0}, map[string]any{"source": 1}},
		"images": []any{
			map[string]any{"name": "albedo", "bufferView": imageView, "mimeType": "image/png"},
			map[string]any{"uri": "spec.png"},
		},
		"bufferViews": f.views,
		"accessors":   f.accessors,
	}
	return doc, f.bin.Bytes()
}

func encodeGLTF(t *testing.T, doc map[string]any, bin []byte) []byte {
	t.Helper()
	doc["buffers"] = []any{map[string]any{
		"uri":        "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(bin),
		"byteLength": len(bin),
	}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func encodeGLB(t *testing.T, doc map[string]any, bin []byte) []byte {
	t.Helper()
	doc["buffers"] = []any{map[string]any{"byteLength": len(bin)}}
	jsonChunk, err := json.Marshal(doc)
	require.NoError(t, err)
	for len(jsonChunk)%4 != 0 {
		jsonChunk = append(jsonChunk, ' ')
	}
	binChunk := bytes.Clone(bin)
	for len(binChunk)%4 != 0 {
		binChunk = append(binChunk, 0)
	}

	var out bytes.Buffer
	total := 12 + 8 + len(jsonChunk) + 8 + len(binChunk)
	for _, v := range []uint32{glbMagic, glbVersion, uint32(total), uint32(len(jsonChunk)), glbChunkJSON} {
		require.NoError(t, binary.Write(&out, binary.LittleEndian, v))
	}
	out.Write(jsonChunk)
	for _, v := range []uint32{uint32(len(binChunk)), glbChunkBIN} {
		require.NoError(t, binary.Write(&out, binary.LittleEndian, v))
	}
	out.Write(binChunk)
	return out.Bytes()
}

func writeRig(t *testing.T) string {
	t.Helper()
	doc, bin := rigDocument(t)
	path := filepath.Join(t.TempDir(), "rig.gltf")
	require.NoError(t, os.WriteFile(path, encodeGLTF(t, doc, bin), 0o644))
	return path
}

func TestRegistry_LoadSkinnedGLTF(t *testing.T) {
	path := writeRig(t)
	reg := NewRegistry(BackendTypeGLTF)

	m, err := reg.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rig", m.Name)
	assert.Equal(t, path, m.Path)
	assert.True(t, m.Animated())
	require.Len(t, m.Meshes, 2)

	s := m.Skeleton
	require.NotNil(t, s)
	assert.Len(t, s.Nodes, 6)
	assert.Equal(t, skeletonRootName, s.Nodes[s.Root].Name)
	assert.Equal(t, []int{1, 5}, s.Nodes[s.Root].Children)

	// Skin joints list Spine before Hip, so Spine takes bone 0.
	require.Equal(t, 2, s.BoneCount())
	assert.Equal(t, 0, s.Bones["Spine"].Index)
	assert.Equal(t, 1, s.Bones["Hip"].Index)
	assert.Equal(t, common.Translation(common.Vec3{0, -1, 0}), s.Bones["Hip"].Offset)

	skinned := m.Meshes[0]
	assert.Equal(t, "body", skinned.Name)
	assert.Equal(t, []uint32{0, 1, 2}, skinned.Indices)
	assert.Equal(t, 0, skinned.MaterialIndex)

	v0 := skinned.Vertices[0]
	assert.Equal(t, [model.MaxBoneInfluences]uint32{0, 1, 0, 1, 0, 1, 0, 1}, v0.BoneIDs)
	assert.InDeltaSlice(t, []float32{0.2, 0.2, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}, v0.Weights[:], 1e-6)
	assert.Equal(t, uint32(1), skinned.Vertices[1].BoneIDs[0])
	assert.Equal(t, float32(1), skinned.Vertices[1].Weights[0])
	assert.Equal(t, float32(0), skinned.Vertices[1].Weights[1])

	// The skinned primitive has no normals, so they are generated from its winding.
	for _, v := range skinned.Vertices {
		assert.InDeltaSlice(t, []float32{0, 0, 1}, v.Normal[:], 1e-6)
	}
	// Skinned positions stay in mesh space.
	assert.Equal(t, [3]float32{1, 0, 0}, skinned.Vertices[1].Position)

	static := m.Meshes[1]
	assert.Equal(t, []uint32{0, 1, 2}, static.Indices)
	assert.Equal(t, [3]float32{5, 0, 0}, static.Vertices[0].Position)
	assert.Equal(t, [3]float32{6, 0, 0}, static.Vertices[1].Position)
	assert.Equal(t, [3]float32{5, 1, 0}, static.Vertices[2].Position)
	assert.Equal(t, [model.MaxBoneInfluences]float32{}, static.Vertices[0].Weights)
}

func TestRegistry_ClipsAreCompleted(t *testing.T) {
	reg := NewRegistry(BackendTypeGLTF)
	m, err := reg.Load(writeRig(t))
	require.NoError(t, err)
	require.Len(t, m.Skeleton.Clips, 1)

	clip := m.Skeleton.Clips[0]
	assert.Equal(t, "Walk", clip.Name)
	assert.Equal(t, float32(2), clip.Duration)
	assert.Equal(t, float32(1), clip.TicksPerSecond)
	require.Len(t, clip.Channels, 2)

	hip := clip.Channels["Hip"]
	require.NotNil(t, hip)
	require.Len(t, hip.Rotations, 3)
	assert.Equal(t, float32(2), hip.Rotations[2].Time)
	assert.Equal(t, hip.Rotations[1].Value, hip.Rotations[2].Value)
	require.Len(t, hip.Translations, 1)
	assert.Equal(t, common.Vec3{0, 1, 0}, hip.Translations[0].Value)
	require.Len(t, hip.Scales, 1)
	assert.Equal(t, common.Vec3{1, 1, 1}, hip.Scales[0].Value)

	spine := clip.Channels["Spine"]
	require.NotNil(t, spine)
	require.Len(t, spine.Translations, 2)
	assert.Equal(t, common.Vec3{0, 3, 0}, spine.Translations[1].Value)
	require.Len(t, spine.Rotations, 1)
	assert.Equal(t, common.IdentityQuat, spine.Rotations[0].Value)

	assert.NoError(t, m.Skeleton.Validate())
}

func TestRegistry_Materials(t *testing.T) {
	path := writeRig(t)
	reg := NewRegistry(BackendTypeGLTF)
	m, err := reg.Load(path)
	require.NoError(t, err)
	require.Len(t, m.Materials, 1)

	mat := m.Materials[0]
	assert.Equal(t, "Skin", mat.Name)
	require.NotNil(t, mat.DiffuseTexture)
	assert.Equal(t, "image_0_albedo", mat.DiffuseTexture.Name)
	assert.Equal(t, "image/png", mat.DiffuseTexture.MimeType)
	assert.NotEmpty(t, mat.DiffuseTexture.Data)
	assert.Empty(t, mat.DiffuseTexture.Path)

	require.NotNil(t, mat.SpecularTexture)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "spec.png"), mat.SpecularTexture.Path)
	assert.Empty(t, mat.SpecularTexture.Data)
}

func TestRegistry_LoadCachesByPath(t *testing.T) {
	path := writeRig(t)
	reg := NewRegistry(BackendTypeGLTF)

	first, err := reg.Load(path)
	require.NoError(t, err)
	second, err := reg.Load(path)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, reg.Get(path))
	assert.Len(t, reg.Models(), 1)
	assert.Nil(t, reg.Get("missing.gltf"))
}

func TestRegistry_WithModel(t *testing.T) {
	pre := &model.ImportedModel{Name: "pre"}
	reg := NewRegistry(BackendTypeGLTF, WithModel("pre.glb", pre))

	got, err := reg.Load("pre.glb")
	require.NoError(t, err)
	assert.Same(t, pre, got)
}

func TestRegistry_LoadReaderGLB(t *testing.T) {
	doc, bin := rigDocument(t)
	reg := NewRegistry(BackendTypeGLTF)

	m, err := reg.LoadReader("assets/rig.glb", bytes.NewReader(encodeGLB(t, doc, bin)))
	require.NoError(t, err)
	assert.Equal(t, "rig", m.Name)
	require.Len(t, m.Meshes, 2)
	assert.Equal(t, 2, m.Skeleton.BoneCount())
	require.NotNil(t, m.Materials[0].SpecularTexture)
	assert.Equal(t, filepath.Join("assets", "spec.png"), m.Materials[0].SpecularTexture.Path)
	assert.Same(t, m, reg.Get("assets/rig.glb"))
}

func TestRegistry_LoadErrors(t *testing.T) {
	reg := NewRegistry(BackendTypeGLTF)

	_, err := reg.Load("model.obj")
	assert.ErrorContains(t, err, "unsupported model format")

	_, err = reg.Load(filepath.Join(t.TempDir(), "missing.gltf"))
	assert.Error(t, err)

	_, err = reg.LoadReader("old.gltf", bytes.NewReader([]byte(`{"asset":{"version":"1.0"}}`)))
	assert.ErrorIs(t, err, errInvalidGLTFVersion)

	_, err = reg.LoadReader("short.glb", bytes.NewReader([]byte("glTF\x02\x00\x00\x00")))
	assert.ErrorIs(t, err, errInvalidGLB)

	assert.Empty(t, reg.Models())
}

func TestImport_RejectsBadPrimitives(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		want   string
	}{
		{
			name: "line primitive",
			mutate: func(doc map[string]any) {
				prim := doc["meshes"].([]any)[1].(map[string]any)["primitives"].([]any)[0].(map[string]any)
				prim["mode"] = 1
			},
			want: "unsupported primitive mode",
		},
		{
			name: "joint outside skin",
			mutate: func(doc map[string]any) {
				doc["skins"].([]any)[0].(map[string]any)["joints"] = []int{2}
			},
			want: "references joint 1 of 1",
		},
		{
			name: "missing positions",
			mutate: func(doc map[string]any) {
				prim := doc["meshes"].([]any)[1].(map[string]any)["primitives"].([]any)[0].(map[string]any)
				delete(prim["attributes"].(map[string]int), "POSITION")
			},
			want: "no POSITION attribute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, bin := rigDocument(t)
			tt.mutate(doc)
			reg := NewRegistry(BackendTypeGLTF)
			_, err := reg.LoadReader("bad.gltf", bytes.NewReader(encodeGLTF(t, doc, bin)))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRegistry_TextureCache(t *testing.T) {
	path := writeRig(t)
	backend := renderer.NewHeadlessRendererBackend()
	reg := NewRegistry(BackendTypeGLTF, WithRendererBackend(backend))

	m, err := reg.Load(path)
	require.NoError(t, err)
	diffuse := m.Materials[0].DiffuseTexture

	first, err := reg.Texture(diffuse, m.Path)
	require.NoError(t, err)
	assert.True(t, first.Valid())
	second, err := reg.Texture(diffuse, m.Path)
	require.NoError(t, err)
	assert.Same(t, first.Texture, second.Texture)
	assert.Equal(t, 2, diffuse.Width)
	assert.Equal(t, 1, reg.TextureCount())

	// The external specular file does not exist.
	_, err = reg.Texture(m.Materials[0].SpecularTexture, m.Path)
	assert.Error(t, err)
	assert.Equal(t, 1, reg.TextureCount())

	assert.Equal(t, 1, backend.LiveResources(renderer.ResourceKindTexture))
	assert.Equal(t, 1, backend.LiveResources(renderer.ResourceKindSampler))

	reg.Release()
	assert.Equal(t, 0, backend.LiveResources(renderer.ResourceKindTexture))
	assert.Equal(t, 0, backend.LiveResources(renderer.ResourceKindTextureView))
	assert.Equal(t, 0, backend.LiveResources(renderer.ResourceKindSampler))
	assert.Equal(t, 0, reg.TextureCount())
	assert.Nil(t, reg.Get(path))
	assert.Empty(t, backend.Violations())
}

func TestRegistry_TextureWithoutBackend(t *testing.T) {
	reg := NewRegistry(BackendTypeGLTF)
	_, err := reg.Texture(&common.ImportedTexture{Name: "x"}, "scope")
	assert.ErrorIs(t, err, ErrNoRendererBackend)
}

func TestRegistry_ModelInitFallsBackToDiffuseSpecular(t *testing.T) {
	path := writeRig(t)
	backend := renderer.NewHeadlessRendererBackend()
	reg := NewRegistry(BackendTypeGLTF, WithRendererBackend(backend))

	imported, err := reg.Load(path)
	require.NoError(t, err)

	a := model.NewModel(imported, model.WithName("a"))
	b := model.NewModel(imported, model.WithName("b"), model.WithPosition(common.Vec3{2, 0, 0}))
	require.NoError(t, a.Init(backend, reg, 2))
	require.NoError(t, b.Init(backend, reg, 2))

	// Both instances share one uploaded diffuse texture.
	assert.Equal(t, 1, reg.TextureCount())
	require.Len(t, a.Materials(), 2)
	assert.True(t, a.Materials()[0].SpecularFallback())

	a.Release()
	b.Release()
	reg.Release()
	assert.Equal(t, 0, backend.LiveResources(renderer.ResourceKindBuffer))
	assert.Equal(t, 0, backend.LiveResources(renderer.ResourceKindTexture))
	assert.Empty(t, backend.Violations())
}

func TestUniqueNodeNames(t *testing.T) {
	names := uniqueNodeNames([]gltfNode{
		{Name: "Hip"},
		{},
		{Name: "Hip"},
		{Name: skeletonRootName},
		{Name: "node_4"},
	})
	assert.Equal(t, []string{"Hip", "node_1", "node_2", "node_3", "node_4"}, names)
}

func TestDecomposeMatrix(t *testing.T) {
	rot := common.Quat{0, 0.38268343, 0, 0.9238795}
	m := common.Translation(common.Vec3{1, 2, 3}).Mul(rot.Matrix()).Mul(common.Scaling(common.Vec3{2, 2, 2}))

	tr, r, s := decomposeMatrix(m)
	assert.InDeltaSlice(t, []float32{1, 2, 3}, tr[:], 1e-5)
	assert.InDeltaSlice(t, []float32{2, 2, 2}, s[:], 1e-5)
	assert.InDeltaSlice(t, rot[:], r[:], 1e-5)
}
