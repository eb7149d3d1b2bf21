package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
	"github.com/chewxy/math32"
)

// skeletonRootName names the synthetic root that parents the scene's root nodes.
const skeletonRootName = "__scene_root"

// uniqueNodeNames gives every node a distinct name. Unnamed nodes and repeats of an earlier name get
// "node_<index>", which keeps animation channels and bones from aliasing each other.
func uniqueNodeNames(nodes []gltfNode) []string {
	names := make([]string, len(nodes))
	seen := map[string]bool{skeletonRootName: true}
	for i, n := range nodes {
		name := n.Name
		if name == "" || seen[name] {
			name = fmt.Sprintf("node_%d", i)
		}
		for seen[name] {
			name += "_"
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

// buildNodeTree mirrors the glTF hierarchy into a skeleton node tree. Skeleton node i+1 is glTF node i and
// node 0 is the synthetic root, so the tree always has exactly one root.
func (imp *gltfImport) buildNodeTree(roots []int) *animator.Skeleton {
	doc := imp.file.doc
	s := &animator.Skeleton{
		Nodes:         make([]animator.Node, len(doc.Nodes)+1),
		Root:          0,
		Bones:         make(map[string]animator.Bone),
		GlobalInverse: common.Identity(),
	}

	s.Nodes[0] = animator.Node{Name: skeletonRootName, Transform: common.Identity()}
	for _, r := range roots {
		s.Nodes[0].Children = append(s.Nodes[0].Children, r+1)
	}

	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		node := animator.Node{Name: imp.names[i], Transform: nodeLocalMatrix(n)}
		for _, c := range n.Children {
			node.Children = append(node.Children, c+1)
		}
		s.Nodes[i+1] = node
	}
	return s
}

// skinBones registers the joints of a skin as bones and returns the bone index of each joint.
// Numbering is first-seen-wins across the whole file: a joint shared with an earlier skin keeps its index.
func (imp *gltfImport) skinBones(skinIndex int) ([]int, error) {
	if bones, ok := imp.jointBones[skinIndex]; ok {
		return bones, nil
	}
	doc := imp.file.doc
	if skinIndex < 0 || skinIndex >= len(doc.Skins) {
		return nil, fmt.Errorf("skin index %d out of range", skinIndex)
	}
	skin := &doc.Skins[skinIndex]

	var inverseBind [][16]float32
	if skin.InverseBindMatrices != nil {
		var err error
		inverseBind, err = imp.file.readMat4s(*skin.InverseBindMatrices)
		if err != nil {
			return nil, fmt.Errorf("skin %d: inverse bind matrices: %w", skinIndex, err)
		}
	}

	bones := make([]int, len(skin.Joints))
	for j, nodeIndex := range skin.Joints {
		if nodeIndex < 0 || nodeIndex >= len(doc.Nodes) {
			return nil, fmt.Errorf("skin %d joint %d: invalid node index %d", skinIndex, j, nodeIndex)
		}
		name := imp.names[nodeIndex]
		if _, known := imp.skeleton.Bones[name]; !known && imp.skeleton.BoneCount() >= animator.MaxBones {
			return nil, fmt.Errorf("skin %d: joint %q exceeds the %d bone limit", skinIndex, name, animator.MaxBones)
		}
		offset := common.Identity()
		if j < len(inverseBind) {
			offset = common.Mat4(inverseBind[j])
		}
		bones[j] = imp.skeleton.AddBone(name, offset)
	}
	imp.jointBones[skinIndex] = bones
	return bones, nil
}

// nodeTRS returns a node's bind pose as translation, rotation and scale, decomposing Matrix when present.
func nodeTRS(n *gltfNode) (common.Vec3, common.Quat, common.Vec3) {
	if n.Matrix != nil {
		return decomposeMatrix(common.Mat4(*n.Matrix))
	}
	t, r, s := common.Vec3{}, common.IdentityQuat, common.Vec3{1, 1, 1}
	if n.Translation != nil {
		t = common.Vec3(*n.Translation)
	}
	if n.Rotation != nil {
		r = common.Quat(*n.Rotation).Normalize()
	}
	if n.Scale != nil {
		s = common.Vec3(*n.Scale)
	}
	return t, r, s
}

// nodeLocalMatrix returns the node transform relative to its parent.
func nodeLocalMatrix(n *gltfNode) common.Mat4 {
	if n.Matrix != nil {
		return common.Mat4(*n.Matrix)
	}
	t, r, s := nodeTRS(n)
	return common.Translation(t).Mul(r.Matrix()).Mul(common.Scaling(s))
}

// decomposeMatrix splits a column-major affine matrix without shear into translation, rotation and scale.
func decomposeMatrix(m common.Mat4) (common.Vec3, common.Quat, common.Vec3) {
	t := common.Vec3{m[12], m[13], m[14]}
	s := common.Vec3{
		math32.Sqrt(m[0]*m[0] + m[1]*m[1] + m[2]*m[2]),
		math32.Sqrt(m[4]*m[4] + m[5]*m[5] + m[6]*m[6]),
		math32.Sqrt(m[8]*m[8] + m[9]*m[9] + m[10]*m[10]),
	}
	inv := common.Vec3{1, 1, 1}
	for i := range s {
		if s[i] > 1e-6 {
			inv[i] = 1 / s[i]
		}
	}

	// r[row][col] of the normalized rotation part.
	r := [3][3]float32{
		{m[0] * inv[0], m[4] * inv[1], m[8] * inv[2]},
		{m[1] * inv[0], m[5] * inv[1], m[9] * inv[2]},
		{m[2] * inv[0], m[6] * inv[1], m[10] * inv[2]},
	}
	return t, quatFromRotation(r), s
}

// quatFromRotation converts a 3x3 rotation matrix into a unit quaternion (x, y, z, w).
func quatFromRotation(r [3][3]float32) common.Quat {
	var q common.Quat
	trace := r[0][0] + r[1][1] + r[2][2]
	switch {
	case trace > 0:
		s := math32.Sqrt(trace+1) * 2
		q = common.Quat{(r[2][1] - r[1][2]) / s, (r[0][2] - r[2][0]) / s, (r[1][0] - r[0][1]) / s, s / 4}
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math32.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = common.Quat{s / 4, (r[0][1] + r[1][0]) / s, (r[0][2] + r[2][0]) / s, (r[2][1] - r[1][2]) / s}
	case r[1][1] > r[2][2]:
		s := math32.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = common.Quat{(r[0][1] + r[1][0]) / s, s / 4, (r[1][2] + r[2][1]) / s, (r[0][2] - r[2][0]) / s}
	default:
		s := math32.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = common.Quat{(r[0][2] + r[2][0]) / s, (r[1][2] + r[2][1]) / s, s / 4, (r[1][0] - r[0][1]) / s}
	}
	return q.Normalize()
}
