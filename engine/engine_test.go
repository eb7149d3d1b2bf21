package engine

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/camera"
	"github.com/Carmen-Shannon/oxy-bench/engine/loader"
	"github.com/Carmen-Shannon/oxy-bench/engine/model"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-bench/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock advances a fixed step on every read.
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func triangleModel(t *testing.T) *model.ImportedModel {
	return &model.ImportedModel{
		Name: "tri",
		Path: "tri.glb",
		Meshes: []model.ImportedMesh{{
			Name: "tri",
			Vertices: []model.GPUVertex{
				{Position: [3]float32{0, 0, 0}},
				{Position: [3]float32{1, 0, 0}},
				{Position: [3]float32{0, 1, 0}},
			},
			Indices: []uint32{0, 1, 2},
		}},
		Skeleton: &animator.Skeleton{GlobalInverse: common.Identity()},
		Materials: []common.ImportedMaterial{{
			Name:           "flat",
			DiffuseTexture: &common.ImportedTexture{Name: "diffuse", Data: pngBytes(t), MimeType: "image/png"},
		}},
	}
}

func TestEngine_RunFrameLoopHeadless(t *testing.T) {
	backend := renderer.NewHeadlessRendererBackend()
	clock := &steppingClock{t: time.Unix(0, 0), step: 5 * time.Millisecond}
	e := NewEngine(renderer.BackendTypeHeadless,
		WithRendererOptions(renderer.WithBackend(backend), renderer.WithWorkers(2)),
		WithLoaderOptions(loader.WithModel("tri.glb", triangleModel(t))),
		WithTimeLimit(200*time.Millisecond),
		WithClock(clock.now),
	)

	placements := []scene.Placement{
		{Scale: common.Vec3{1, 1, 1}, ModelPath: "tri.glb", AnimationIndex: scene.StaticAnimation},
		{Position: common.Vec3{2, 0, 0}, Scale: common.Vec3{1, 1, 1}, ModelPath: "tri.glb", AnimationIndex: scene.StaticAnimation},
	}
	fps, err := e.RunFrameLoop(placements)
	require.NoError(t, err)

	assert.Greater(t, fps, 0.0)
	assert.Greater(t, backend.Submissions(), 0)
	assert.GreaterOrEqual(t, backend.WaitIdleCalls(), 1)
	assert.Empty(t, backend.Violations())
}

func TestEngine_RunFrameLoopTearsDownOnLoadError(t *testing.T) {
	backend := renderer.NewHeadlessRendererBackend()
	e := NewEngine(renderer.BackendTypeHeadless,
		WithRendererOptions(renderer.WithBackend(backend), renderer.WithWorkers(1)),
	)

	_, err := e.RunFrameLoop([]scene.Placement{{Scale: common.Vec3{1, 1, 1}, ModelPath: filepath.Join(t.TempDir(), "gone.glb")}})
	assert.ErrorContains(t, err, "placement 0")
	assert.GreaterOrEqual(t, backend.WaitIdleCalls(), 1)
}

func TestEngine_Defaults(t *testing.T) {
	e := NewEngine(renderer.BackendTypeHeadless, WithTimeLimit(-time.Second)).(*engine)
	assert.Equal(t, DefaultTimeLimit, e.timeLimit)
	assert.NotNil(t, e.Camera())
	assert.Nil(t, e.Window())
	assert.Equal(t, renderer.BackendTypeHeadless, e.BackendType())

	w, h := e.surface.FramebufferSize()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
}

func TestEngine_HandleKeyMovesCamera(t *testing.T) {
	cam := camera.NewCamera(camera.WithPosition(common.Vec3{0, 0, 0}), camera.WithSpeed(3))
	e := NewEngine(renderer.BackendTypeHeadless, WithCamera(cam)).(*engine)

	e.handleKey(common.KeyW)
	assert.InDelta(t, -0.1, cam.Position()[2], 1e-5)

	e.handleKey(common.KeyD)
	assert.InDelta(t, 0.1, cam.Position()[0], 1e-5)

	e.handleKey(common.KeyEnter)
	assert.InDelta(t, 0.1, cam.Position()[0], 1e-5)
}
