package model

import (
	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
)

// ImportedModel represents a 3D model loaded from an external format.
// This is the universal format that importers produce. It is immutable once built and shared by every
// RenderModel placed from the same file.
type ImportedModel struct {
	// Name is the model identifier.
	Name string

	// Path is the file the model was read from. It scopes embedded texture names.
	Path string

	// Meshes contains all mesh data, in node traversal order.
	Meshes []ImportedMesh

	// Skeleton is the node tree with its bones and animation clips. Every model has one; a static model
	// has zero bones.
	Skeleton *animator.Skeleton

	// Materials are the materials referenced by ImportedMesh.MaterialIndex.
	Materials []common.ImportedMaterial
}

// Animated reports whether the model has bones and at least one clip to play.
func (m *ImportedModel) Animated() bool {
	return m.Skeleton != nil && m.Skeleton.BoneCount() > 0 && len(m.Skeleton.Clips) > 0
}

// IndexCount returns the total number of indices over all meshes.
func (m *ImportedModel) IndexCount() int {
	n := 0
	for _, mesh := range m.Meshes {
		n += len(mesh.Indices)
	}
	return n
}

// ImportedMesh represents a single mesh within an imported model.
type ImportedMesh struct {
	// Name is the mesh identifier.
	Name string

	// Vertices are the mesh vertices, including bone influences for skinned meshes.
	Vertices []GPUVertex

	// Indices are the triangle indices.
	Indices []uint32

	// MaterialIndex references ImportedModel.Materials, or -1 when the mesh has no material.
	MaterialIndex int
}
