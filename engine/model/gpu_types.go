package model

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
)

// MaxBoneInfluences is the number of bones that may influence one vertex.
const MaxBoneInfluences = 8

// GPUVertex is the GPU-aligned representation of a single skinned mesh vertex.
// Matches the vertex input of the skinned shader pair exactly.
// Size: 96 bytes (std430 aligned, no padding required).
type GPUVertex struct {
	Position [3]float32                 // offset  0: vertex position in model space (12 bytes)
	Normal   [3]float32                 // offset 12: vertex normal for lighting (12 bytes)
	TexCoord [2]float32                 // offset 24: UV texture coordinate (8 bytes)
	BoneIDs  [MaxBoneInfluences]uint32  // offset 32: indices of up to 8 influencing bones (32 bytes)
	Weights  [MaxBoneInfluences]float32 // offset 64: blend weight per bone, 0 marks a free slot (32 bytes)
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// AddBoneData stores a bone influence in the first free slot of the vertex.
// A slot is free while its weight is zero. A vertex with all slots taken is a logic violation.
//
// Parameters:
//   - boneID: the stable bone index
//   - weight: the influence weight
func (g *GPUVertex) AddBoneData(boneID int, weight float32) {
	for i := range g.Weights {
		if g.Weights[i] == 0 {
			g.BoneIDs[i] = uint32(boneID)
			g.Weights[i] = weight
			return
		}
	}
	common.PanicLogicViolation("model", "bone exceed: vertex already has %d influences, cannot add bone %d", MaxBoneInfluences, boneID)
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, 96)
	g.marshalTo(buf)
	return buf
}

func (g *GPUVertex) marshalTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Position[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Position[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Position[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.Normal[0]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Normal[1]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Normal[2]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.TexCoord[0]))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.TexCoord[1]))
	for i := 0; i < MaxBoneInfluences; i++ {
		binary.LittleEndian.PutUint32(buf[32+i*4:36+i*4], g.BoneIDs[i])
		binary.LittleEndian.PutUint32(buf[64+i*4:68+i*4], math.Float32bits(g.Weights[i]))
	}
}

// MarshalVertices serializes a vertex slice into one contiguous vertex buffer.
//
// Parameters:
//   - vertices: the vertices to serialize
//
// Returns:
//   - []byte: len(vertices) * 96 bytes
func MarshalVertices(vertices []GPUVertex) []byte {
	const stride = 96
	buf := make([]byte, len(vertices)*stride)
	for i := range vertices {
		vertices[i].marshalTo(buf[i*stride : (i+1)*stride])
	}
	return buf
}

// MarshalIndices serializes a uint32 index slice into an index buffer.
func MarshalIndices(indices []uint32) []byte {
	buf := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

// GPUUniformData is the GPU-aligned per-draw uniform block of the skinned shader pair.
// Size: 6416 bytes (100 mat4x4<f32> followed by one vec4<f32>, std140 aligned).
type GPUUniformData struct {
	Bones   [animator.MaxBones]common.Mat4 // offset    0: final bone transforms, indexed by stable bone index (6400 bytes)
	ViewPos [4]float32                     // offset 6400: camera position in world space, w unused (16 bytes)
}

// UniformDataSize is the size of GPUUniformData in bytes.
const UniformDataSize = animator.MaxBones*64 + 16

// Size returns the size of the GPUUniformData struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUUniformData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUUniformData struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 6416-byte buffer ready for GPU upload.
func (g *GPUUniformData) Marshal() []byte {
	buf := make([]byte, UniformDataSize)
	g.marshalTo(buf)
	return buf
}

func (g *GPUUniformData) marshalTo(buf []byte) {
	for b := range g.Bones {
		putMat4(buf[b*64:], g.Bones[b])
	}
	off := animator.MaxBones * 64
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(g.ViewPos[i]))
	}
}

// GPUPushConstants is the per-draw push constant block: projection * view * model, then model.
// Size: 128 bytes (two mat4x4<f32>).
type GPUPushConstants struct {
	PVM   common.Mat4 // offset  0: clip-space transform (64 bytes)
	Model common.Mat4 // offset 64: model-to-world transform for lighting (64 bytes)
}

// Size returns the size of the GPUPushConstants struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUPushConstants) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPushConstants struct into a byte buffer suitable for a push constant update.
//
// Returns:
//   - []byte: 128-byte buffer.
func (g *GPUPushConstants) Marshal() []byte {
	buf := make([]byte, 128)
	putMat4(buf[0:], g.PVM)
	putMat4(buf[64:], g.Model)
	return buf
}

func putMat4(buf []byte, m common.Mat4) {
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(m[i]))
	}
}
