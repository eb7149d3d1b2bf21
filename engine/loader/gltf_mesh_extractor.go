package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/chewxy/math32"
)

// influenceSets lists the joint and weight attribute pairs read per vertex, four influences each.
var influenceSets = [][2]string{
	{"JOINTS_0", "WEIGHTS_0"},
	{"JOINTS_1", "WEIGHTS_1"},
}

// extractMeshes walks the scene depth-first and returns one ImportedMesh per triangle primitive.
// Skinned primitives stay in mesh space, since the bone matrices place them. Static primitives have their
// node's world transform baked into positions and normals.
func (imp *gltfImport) extractMeshes(roots []int) ([]model.ImportedMesh, error) {
	doc := imp.file.doc
	var meshes []model.ImportedMesh
	visited := make([]bool, len(doc.Nodes))

	var walk func(nodeIndex int, parent common.Mat4) error
	walk = func(nodeIndex int, parent common.Mat4) error {
		if nodeIndex < 0 || nodeIndex >= len(doc.Nodes) {
			return fmt.Errorf("node index %d out of range", nodeIndex)
		}
		if visited[nodeIndex] {
			return fmt.Errorf("node %q is reachable twice", imp.names[nodeIndex])
		}
		visited[nodeIndex] = true

		node := &doc.Nodes[nodeIndex]
		world := parent.Mul(nodeLocalMatrix(node))
		if node.Mesh != nil {
			extracted, err := imp.extractNodeMesh(node, world)
			if err != nil {
				return fmt.Errorf("node %q: %w", imp.names[nodeIndex], err)
			}
			meshes = append(meshes, extracted...)
		}
		for _, c := range node.Children {
			if err := walk(c, world); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range roots {
		if err := walk(r, common.Identity()); err != nil {
			return nil, err
		}
	}
	return meshes, nil
}

func (imp *gltfImport) extractNodeMesh(node *gltfNode, world common.Mat4) ([]model.ImportedMesh, error) {
	doc := imp.file.doc
	if *node.Mesh < 0 || *node.Mesh >= len(doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", *node.Mesh)
	}
	mesh := &doc.Meshes[*node.Mesh]

	var jointBones []int
	if node.Skin != nil {
		var err error
		if jointBones, err = imp.skinBones(*node.Skin); err != nil {
			return nil, err
		}
	}

	out := make([]model.ImportedMesh, 0, len(mesh.Primitives))
	for p := range mesh.Primitives {
		prim := &mesh.Primitives[p]
		if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
			return nil, fmt.Errorf("mesh %q primitive %d: unsupported primitive mode %d", mesh.Name, p, *prim.Mode)
		}
		m, err := imp.extractPrimitive(prim, jointBones)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", mesh.Name, p, err)
		}
		if jointBones == nil {
			bakeTransform(m.Vertices, world)
		}
		m.Name = mesh.Name
		if m.Name == "" {
			m.Name = fmt.Sprintf("mesh_%d", *node.Mesh)
		}
		if p > 0 {
			m.Name = fmt.Sprintf("%s_prim%d", m.Name, p)
		}
		out = append(out, m)
	}
	return out, nil
}

// extractPrimitive reads one primitive. jointBones maps skin joint indices to bone indices and is nil
// for a primitive without a skin.
func (imp *gltfImport) extractPrimitive(prim *gltfPrimitive, jointBones []int) (model.ImportedMesh, error) {
	f := imp.file
	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return model.ImportedMesh{}, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := f.readFloats(posAccessor, gltfTypeVec3)
	if err != nil {
		return model.ImportedMesh{}, fmt.Errorf("positions: %w", err)
	}
	vertices := make([]model.GPUVertex, len(positions)/3)
	for i := range vertices {
		copy(vertices[i].Position[:], positions[i*3:])
	}

	hasNormals := false
	if a, ok := prim.Attributes["NORMAL"]; ok {
		normals, err := f.readFloats(a, gltfTypeVec3)
		if err != nil {
			return model.ImportedMesh{}, fmt.Errorf("normals: %w", err)
		}
		for i := range vertices {
			if i*3+2 < len(normals) {
				copy(vertices[i].Normal[:], normals[i*3:])
			}
		}
		hasNormals = true
	}

	if a, ok := prim.Attributes["TEXCOORD_0"]; ok {
		uvs, err := f.readFloats(a, gltfTypeVec2)
		if err != nil {
			return model.ImportedMesh{}, fmt.Errorf("texcoords: %w", err)
		}
		for i := range vertices {
			if i*2+1 < len(uvs) {
				copy(vertices[i].TexCoord[:], uvs[i*2:])
			}
		}
	}

	if jointBones != nil {
		if err := imp.readInfluences(prim, jointBones, vertices); err != nil {
			return model.ImportedMesh{}, err
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = f.readUints(*prim.Indices, gltfTypeScalar); err != nil {
			return model.ImportedMesh{}, fmt.Errorf("indices: %w", err)
		}
		for _, idx := range indices {
			if int(idx) >= len(vertices) {
				return model.ImportedMesh{}, fmt.Errorf("index %d out of range of %d vertices", idx, len(vertices))
			}
		}
	} else {
		indices = make([]uint32, len(vertices))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if len(indices)%3 != 0 {
		return model.ImportedMesh{}, fmt.Errorf("%d indices do not form triangles", len(indices))
	}

	if !hasNormals {
		generateNormals(vertices, indices)
	}

	materialIndex := -1
	if prim.Material != nil {
		materialIndex = *prim.Material
	}
	return model.ImportedMesh{Vertices: vertices, Indices: indices, MaterialIndex: materialIndex}, nil
}

// readInfluences packs JOINTS_n/WEIGHTS_n pairs into the vertices. Zero weights are skipped, so a vertex
// takes at most eight influences.
func (imp *gltfImport) readInfluences(prim *gltfPrimitive, jointBones []int, vertices []model.GPUVertex) error {
	for _, set := range influenceSets {
		jointsAccessor, hasJoints := prim.Attributes[set[0]]
		weightsAccessor, hasWeights := prim.Attributes[set[1]]
		if !hasJoints || !hasWeights {
			continue
		}
		joints, err := imp.file.readUints(jointsAccessor, gltfTypeVec4)
		if err != nil {
			return fmt.Errorf("%s: %w", set[0], err)
		}
		weights, err := imp.file.readFloats(weightsAccessor, gltfTypeVec4)
		if err != nil {
			return fmt.Errorf("%s: %w", set[1], err)
		}

		for i := range vertices {
			for k := 0; k < 4; k++ {
				c := i*4 + k
				if c >= len(weights) || c >= len(joints) || weights[c] == 0 {
					continue
				}
				joint := int(joints[c])
				if joint >= len(jointBones) {
					return fmt.Errorf("%s: vertex %d references joint %d of %d", set[0], i, joint, len(jointBones))
				}
				vertices[i].AddBoneData(jointBones[joint], weights[c])
			}
		}
	}
	return nil
}

// bakeTransform moves static vertices into model space. Normals use the upper 3x3 block, which is exact
// for rotations and uniform scales.
func bakeTransform(vertices []model.GPUVertex, world common.Mat4) {
	if world == common.Identity() {
		return
	}
	for i := range vertices {
		p, n := vertices[i].Position, vertices[i].Normal
		for r := 0; r < 3; r++ {
			vertices[i].Position[r] = world[r]*p[0] + world[4+r]*p[1] + world[8+r]*p[2] + world[12+r]
			vertices[i].Normal[r] = world[r]*n[0] + world[4+r]*n[1] + world[8+r]*n[2]
		}
		vertices[i].Normal = normalizeOr(vertices[i].Normal, [3]float32{0, 1, 0})
	}
}

// generateNormals computes smooth area-weighted vertex normals for primitives that ship without them.
func generateNormals(vertices []model.GPUVertex, indices []uint32) {
	accum := make([][3]float32, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0, p1, p2 := vertices[i0].Position, vertices[i1].Position, vertices[i2].Position
		e1 := [3]float32{p1[0] - p0[0], p1[1] - p0[1], p1[2] - p0[2]}
		e2 := [3]float32{p2[0] - p0[0], p2[1] - p0[1], p2[2] - p0[2]}
		face := [3]float32{
			e1[1]*e2[2] - e1[2]*e2[1],
			e1[2]*e2[0] - e1[0]*e2[2],
			e1[0]*e2[1] - e1[1]*e2[0],
		}
		for _, idx := range [3]uint32{i0, i1, i2} {
			accum[idx][0] += face[0]
			accum[idx][1] += face[1]
			accum[idx][2] += face[2]
		}
	}
	for i := range vertices {
		vertices[i].Normal = normalizeOr(accum[i], [3]float32{0, 1, 0})
	}
}

func normalizeOr(v, fallback [3]float32) [3]float32 {
	l := math32.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if l < 1e-6 {
		return fallback
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}
