package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bench/common"
)

// extractMaterials returns the diffuse and specular texture references of every material, in document order
// so that ImportedMesh.MaterialIndex indexes the result directly.
//
// The diffuse texture is the base color texture, or the diffuse texture of the spec-gloss extension.
// The specular texture comes from KHR_materials_specular or the spec-gloss extension and may be nil.
func (imp *gltfImport) extractMaterials() ([]common.ImportedMaterial, error) {
	doc := imp.file.doc
	materials := make([]common.ImportedMaterial, len(doc.Materials))
	for i := range doc.Materials {
		src := &doc.Materials[i]
		name := src.Name
		if name == "" {
			name = fmt.Sprintf("material_%d", i)
		}
		mat := common.ImportedMaterial{Name: name}

		var diffuse, specular *gltfTextureInfo
		if src.PbrMetallicRoughness != nil {
			diffuse = src.PbrMetallicRoughness.BaseColorTexture
		}
		if ext := src.Extensions; ext != nil {
			if sg := ext.SpecularGlossiness; sg != nil {
				if diffuse == nil {
					diffuse = sg.DiffuseTexture
				}
				specular = sg.SpecularGlossinessTexture
			}
			if sp := ext.Specular; sp != nil {
				if sp.SpecularTexture != nil {
					specular = sp.SpecularTexture
				} else if sp.SpecularColorTexture != nil {
					specular = sp.SpecularColorTexture
				}
			}
		}

		var err error
		if diffuse != nil {
			if mat.DiffuseTexture, err = imp.texture(diffuse.Index); err != nil {
				return nil, fmt.Errorf("material %q diffuse: %w", name, err)
			}
		}
		if specular != nil {
			if mat.SpecularTexture, err = imp.texture(specular.Index); err != nil {
				return nil, fmt.Errorf("material %q specular: %w", name, err)
			}
		}
		materials[i] = mat
	}
	return materials, nil
}

// texture resolves a glTF texture index to an ImportedTexture. Materials that reference the same texture share
// one instance. Embedded images are named after their image index so their cache keys never collide within
// a model.
func (imp *gltfImport) texture(index int) (*common.ImportedTexture, error) {
	if tex, ok := imp.textures[index]; ok {
		return tex, nil
	}
	doc := imp.file.doc
	if index < 0 || index >= len(doc.Textures) {
		return nil, fmt.Errorf("texture index %d out of range", index)
	}
	source := doc.Textures[index].Source
	if source == nil {
		return nil, fmt.Errorf("texture %d has no image source", index)
	}

	data, path, mime, err := imp.file.image(*source)
	if err != nil {
		return nil, err
	}
	tex := &common.ImportedTexture{
		Name:     fmt.Sprintf("image_%d", *source),
		Path:     path,
		Data:     data,
		MimeType: mime,
	}
	if n := doc.Images[*source].Name; n != "" {
		tex.Name += "_" + n
	}
	imp.textures[index] = tex
	return tex, nil
}
