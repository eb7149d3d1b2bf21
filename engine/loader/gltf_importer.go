package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
)

// gltfImport carries the state shared by the extractors while one document is converted.
type gltfImport struct {
	file *gltfFile

	// path is the source file, or the cache name for reader imports.
	path string

	// names holds a unique name per glTF node. Channels and bones are keyed by it.
	names []string

	skeleton *animator.Skeleton

	// jointBones maps skin index to the bone index of each of its joints.
	jointBones map[int][]int

	// textures caches imported textures by glTF texture index.
	textures map[int]*common.ImportedTexture
}

// importGLTF converts a parsed document into an ImportedModel.
//
// Meshes are collected in depth-first node order from the default scene. Bones are numbered first-seen-wins
// as skinned primitives are discovered, so the numbering is fixed per file. The node tree, bones and clips
// form one Skeleton under a synthetic root; a model without skins gets a skeleton with zero bones.
//
// Parameters:
//   - file: the parsed document
//   - path: the source path, used for naming and to scope embedded textures
//
// Returns:
//   - *model.ImportedModel: the imported model
//   - error: an extraction error, or a skeleton that fails Validate
func importGLTF(file *gltfFile, path string) (*model.ImportedModel, error) {
	imp := &gltfImport{
		file:       file,
		path:       path,
		jointBones: make(map[int][]int),
		textures:   make(map[int]*common.ImportedTexture),
	}
	imp.names = uniqueNodeNames(file.doc.Nodes)

	roots, err := imp.sceneRoots()
	if err != nil {
		return nil, err
	}
	imp.skeleton = imp.buildNodeTree(roots)

	meshes, err := imp.extractMeshes(roots)
	if err != nil {
		return nil, fmt.Errorf("mesh extraction failed: %w", err)
	}

	clips, err := imp.extractClips()
	if err != nil {
		return nil, fmt.Errorf("animation extraction failed: %w", err)
	}
	imp.skeleton.Clips = clips

	materials, err := imp.extractMaterials()
	if err != nil {
		return nil, fmt.Errorf("material extraction failed: %w", err)
	}

	if err := imp.skeleton.Validate(); err != nil {
		return nil, fmt.Errorf("invalid skeleton: %w", err)
	}

	return &model.ImportedModel{
		Name:      modelName(file.doc, path),
		Path:      path,
		Meshes:    meshes,
		Skeleton:  imp.skeleton,
		Materials: materials,
	}, nil
}

// sceneRoots returns the root nodes of the default scene, or every parentless node when the document
// declares no scene.
func (imp *gltfImport) sceneRoots() ([]int, error) {
	doc := imp.file.doc
	if len(doc.Scenes) > 0 {
		scene := 0
		if doc.Scene != nil {
			scene = *doc.Scene
		}
		if scene < 0 || scene >= len(doc.Scenes) {
			return nil, fmt.Errorf("default scene %d out of range", scene)
		}
		for _, n := range doc.Scenes[scene].Nodes {
			if n < 0 || n >= len(doc.Nodes) {
				return nil, fmt.Errorf("scene root %d out of range", n)
			}
		}
		return doc.Scenes[scene].Nodes, nil
	}

	hasParent := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	var roots []int
	for i, p := range hasParent {
		if !p {
			roots = append(roots, i)
		}
	}
	return roots, nil
}

// modelName is the file name without its extension. Exporters mostly name every scene "Scene",
// so the scene name is only a fallback.
func modelName(doc *gltfDocument, path string) string {
	if path != "" {
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		if name := doc.Scenes[*doc.Scene].Name; name != "" {
			return name
		}
	}
	return "unnamed_model"
}
