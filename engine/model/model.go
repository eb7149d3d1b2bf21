package model

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/material"
)

// ErrNotInitialized is returned when a model is drawn before Init or after Release.
var ErrNotInitialized = errors.New("model not initialized")

// model is the implementation of the Model interface.
type model struct {
	name     string
	source   *ImportedModel
	position common.Vec3
	scale    common.Vec3
	anim     animator.Animator

	diffuseOverride  *common.ImportedTexture
	specularOverride *common.ImportedTexture

	placement common.Mat4

	backend  renderer.RendererBackend
	registry *renderer.ResourceRegistry
	meshes   []gpuMesh
	uniforms []*renderer.Resource
	scratch  [][]byte
}

// gpuMesh is the device side of one ImportedMesh.
type gpuMesh struct {
	vertexBuffer *renderer.Resource
	indexBuffer  *renderer.Resource
	indexCount   uint32
	material     material.Material
	// sets holds one descriptor set per frame slot, each binding that slot's uniform buffer.
	sets []*renderer.Resource
}

// Model is one placed instance of an imported model, ready to be drawn.
//
// A Model owns its vertex, index and uniform buffers and its descriptor pool through a model registry.
// The imported geometry and the textures are shared with other instances of the same file. Each frame the
// model evaluates its animator, writes the bone matrices into the uniform buffer of the frame slot and
// records one draw per mesh. Two models never share writable storage, so any number of them can record
// concurrently.
type Model interface {
	renderer.Drawable

	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Source retrieves the shared imported model this instance draws.
	//
	// Returns:
	//   - *ImportedModel: the imported model
	Source() *ImportedModel

	// Position retrieves the world position of the model.
	Position() common.Vec3

	// Scale retrieves the per-axis scale of the model.
	Scale() common.Vec3

	// PlacementMatrix retrieves translate(position) * scale(scale).
	PlacementMatrix() common.Mat4

	// Animator retrieves the animator sampled each frame, or nil for a static model.
	Animator() animator.Animator

	// Init uploads the model's geometry, resolves its materials and creates one uniform buffer and one
	// descriptor set per mesh for each frame slot.
	//
	// Parameters:
	//   - backend: the device backend
	//   - textures: the texture source materials upload through
	//   - framesInFlight: the renderer's frame slot count
	//
	// Returns:
	//   - error: a wrapped creation error, or material.ErrMissingDiffuse
	Init(backend renderer.RendererBackend, textures material.TextureSource, framesInFlight int) error

	// Initialized reports whether Init has succeeded and Release has not run.
	Initialized() bool

	// MeshCount returns the number of drawable meshes.
	MeshCount() int

	// Materials returns the resolved material of each drawable mesh.
	Materials() []material.Material

	// UniformBuffer returns the uniform buffer of a frame slot.
	UniformBuffer(frameSlot int) *renderer.Resource

	// Registry returns the registry that owns the model's device resources.
	Registry() *renderer.ResourceRegistry

	// Release destroys every device resource the model owns. The device must be idle.
	Release()
}

var _ Model = &model{}

// NewModel creates a new Model instance of an imported model configured with the provided options.
//
// Parameters:
//   - source: the imported model to draw
//   - options: variadic list of ModelBuilderOption functions to configure the model
//
// Returns:
//   - Model: a new Model instance, not yet initialized
func NewModel(source *ImportedModel, options ...ModelBuilderOption) Model {
	m := &model{
		name:   source.Name,
		source: source,
		scale:  common.Vec3{1, 1, 1},
	}
	for _, opt := range options {
		opt(m)
	}
	m.placement = common.Translation(m.position).Mul(common.Scaling(m.scale))
	return m
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Source() *ImportedModel {
	return m.source
}

func (m *model) Position() common.Vec3 {
	return m.position
}

func (m *model) Scale() common.Vec3 {
	return m.scale
}

func (m *model) PlacementMatrix() common.Mat4 {
	return m.placement
}

func (m *model) Animator() animator.Animator {
	return m.anim
}

func (m *model) Init(backend renderer.RendererBackend, textures material.TextureSource, framesInFlight int) (err error) {
	if m.registry != nil {
		return fmt.Errorf("model %s: already initialized", m.name)
	}
	if framesInFlight < 1 {
		return fmt.Errorf("model %s: %d frames in flight", m.name, framesInFlight)
	}
	registry := renderer.NewModelResourceRegistry(m.name)
	defer func() {
		if err != nil {
			registry.Release()
		}
	}()
	adopt := func(res *renderer.Resource, err error) (*renderer.Resource, error) {
		if err != nil {
			return nil, err
		}
		if err := registry.Adopt(res); err != nil {
			res.Destroy()
			return nil, err
		}
		return res, nil
	}

	var override material.Material
	if m.diffuseOverride != nil {
		override = material.NewMaterial(
			material.WithName(m.name),
			material.WithDiffuseTexture(m.diffuseOverride),
			material.WithSpecularTexture(m.specularOverride),
		)
		if err := override.Resolve(textures, m.source.Path); err != nil {
			return fmt.Errorf("model %s: %w", m.name, err)
		}
	}

	meshes := make([]gpuMesh, 0, len(m.source.Meshes))
	for i, src := range m.source.Meshes {
		if len(src.Vertices) == 0 || len(src.Indices) == 0 {
			continue
		}
		mat := override
		if mat == nil {
			mat, err = m.meshMaterial(src, textures)
			if err != nil {
				return fmt.Errorf("model %s mesh %d: %w", m.name, i, err)
			}
		}
		label := fmt.Sprintf("%s mesh %d", m.name, i)
		vb, err := adopt(backend.CreateBuffer(label+" vertices", renderer.BufferUsageVertex, MarshalVertices(src.Vertices)))
		if err != nil {
			return fmt.Errorf("model %s: vertex buffer: %w", m.name, err)
		}
		ib, err := adopt(backend.CreateBuffer(label+" indices", renderer.BufferUsageIndex, MarshalIndices(src.Indices)))
		if err != nil {
			return fmt.Errorf("model %s: index buffer: %w", m.name, err)
		}
		meshes = append(meshes, gpuMesh{
			vertexBuffer: vb,
			indexBuffer:  ib,
			indexCount:   uint32(len(src.Indices)),
			material:     mat,
		})
	}

	uniforms := make([]*renderer.Resource, framesInFlight)
	scratch := make([][]byte, framesInFlight)
	for slot := range uniforms {
		initial := GPUUniformData{}
		for b := range initial.Bones {
			initial.Bones[b] = common.Identity()
		}
		ubo, err := adopt(backend.CreateBuffer(fmt.Sprintf("%s uniforms %d", m.name, slot), renderer.BufferUsageUniform, initial.Marshal()))
		if err != nil {
			return fmt.Errorf("model %s: uniform buffer: %w", m.name, err)
		}
		uniforms[slot] = ubo
		scratch[slot] = make([]byte, UniformDataSize)
	}

	if len(meshes) > 0 {
		pool, err := adopt(backend.CreateDescriptorPool(m.name, len(meshes)*framesInFlight))
		if err != nil {
			return fmt.Errorf("model %s: descriptor pool: %w", m.name, err)
		}
		for i := range meshes {
			meshes[i].sets = make([]*renderer.Resource, framesInFlight)
			for slot := range uniforms {
				set, err := adopt(backend.AllocateDescriptorSet(pool, meshes[i].material.Binding(uniforms[slot])))
				if err != nil {
					return fmt.Errorf("model %s: descriptor set: %w", m.name, err)
				}
				meshes[i].sets[slot] = set
			}
		}
	}

	m.backend = backend
	m.registry = registry
	m.meshes = meshes
	m.uniforms = uniforms
	m.scratch = scratch
	return nil
}

// meshMaterial resolves the material a mesh references in the imported model.
func (m *model) meshMaterial(mesh ImportedMesh, textures material.TextureSource) (material.Material, error) {
	var imported common.ImportedMaterial
	if mesh.MaterialIndex >= 0 && mesh.MaterialIndex < len(m.source.Materials) {
		imported = m.source.Materials[mesh.MaterialIndex]
	}
	mat := material.FromImported(imported)
	if err := mat.Resolve(textures, m.source.Path); err != nil {
		return nil, err
	}
	return mat, nil
}

func (m *model) Initialized() bool {
	return m.registry != nil
}

func (m *model) MeshCount() int {
	return len(m.meshes)
}

func (m *model) Materials() []material.Material {
	out := make([]material.Material, len(m.meshes))
	for i, mesh := range m.meshes {
		out[i] = mesh.material
	}
	return out
}

func (m *model) UniformBuffer(frameSlot int) *renderer.Resource {
	if frameSlot < 0 || frameSlot >= len(m.uniforms) {
		return nil
	}
	return m.uniforms[frameSlot]
}

func (m *model) Registry() *renderer.ResourceRegistry {
	return m.registry
}

func (m *model) Release() {
	if m.registry == nil {
		return
	}
	m.registry.Release()
	m.registry = nil
	m.meshes = nil
	m.uniforms = nil
	m.scratch = nil
}

// RecordDraw writes the frame slot's uniforms and records the draws of every mesh.
// It runs on a recorder goroutine and touches only this model's storage for frame.Slot.
func (m *model) RecordDraw(cmd renderer.CommandBuffer, frame *renderer.FrameContext) error {
	if m.registry == nil {
		return fmt.Errorf("draw %s: %w", m.name, ErrNotInitialized)
	}
	if frame.Slot >= len(m.uniforms) {
		return fmt.Errorf("draw %s: frame slot %d of %d", m.name, frame.Slot, len(m.uniforms))
	}

	modelMatrix := m.placement
	var bones animator.BoneTransformSet
	if m.anim != nil {
		bones = m.anim.BoneTransforms(frame.Elapsed)
		modelMatrix = m.anim.ModelMatrix(m.placement, frame.Elapsed)
	}
	if len(bones) > animator.MaxBones {
		common.PanicLogicViolation("model", "%s evaluated %d bones, the uniform block holds %d", m.name, len(bones), animator.MaxBones)
	}

	ubo := GPUUniformData{
		ViewPos: [4]float32{frame.CameraPosition[0], frame.CameraPosition[1], frame.CameraPosition[2], 1},
	}
	n := copy(ubo.Bones[:], bones)
	for b := n; b < animator.MaxBones; b++ {
		ubo.Bones[b] = common.Identity()
	}
	buf := m.scratch[frame.Slot]
	ubo.marshalTo(buf)
	if err := m.backend.WriteBuffer(m.uniforms[frame.Slot], 0, buf); err != nil {
		return fmt.Errorf("draw %s: write uniforms: %w", m.name, err)
	}

	push := GPUPushConstants{
		PVM:   frame.Projection.Mul(frame.View).Mul(modelMatrix),
		Model: modelMatrix,
	}
	pushData := push.Marshal()

	cmd.BindPipeline(frame.Pipeline)
	for _, mesh := range m.meshes {
		cmd.BindVertexBuffer(mesh.vertexBuffer)
		cmd.BindIndexBuffer(mesh.indexBuffer)
		cmd.BindDescriptorSet(frame.PipelineLayout, mesh.sets[frame.Slot])
		cmd.PushConstants(frame.PipelineLayout, pushData)
		cmd.DrawIndexed(mesh.indexCount)
	}
	return nil
}
