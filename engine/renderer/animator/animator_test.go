package animator

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBoneSkeleton builds root -> child where both nodes are bones and the root scales from 1 to 2 over 10 ticks.
func twoBoneSkeleton() *Skeleton {
	s := &Skeleton{
		Nodes: []Node{
			{Name: "root", Transform: common.Identity(), Children: []int{1}},
			{Name: "child", Transform: common.Identity()},
		},
		GlobalInverse: common.Identity(),
	}
	s.AddBone("root", common.Identity())
	s.AddBone("child", common.Identity())
	s.Clips = []*Clip{{
		Name:           "grow",
		Duration:       10,
		TicksPerSecond: 1,
		Channels: map[string]*Channel{
			"root": {
				Node:         "root",
				Translations: []VectorKey{{Time: 0}},
				Rotations:    []QuatKey{{Time: 0, Value: common.IdentityQuat}},
				Scales: []VectorKey{
					{Time: 0, Value: common.Vec3{1, 1, 1}},
					{Time: 10, Value: common.Vec3{2, 2, 2}},
				},
			},
		},
	}}
	return s
}

func requireLogicViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value should be an error, got %T", r)
		var lv *common.LogicViolationError
		assert.True(t, errors.As(err, &lv), "panic should carry a LogicViolationError, got %v", err)
	}()
	fn()
}

func TestEvaluate_RootScaleTrackInterpolatesToMidpoint(t *testing.T) {
	s := twoBoneSkeleton()
	require.NoError(t, s.Validate())

	out := Evaluate(s, 0, 5)
	require.Len(t, out, 2)

	for _, idx := range []int{0, 1} {
		m := out[idx]
		assert.InDelta(t, 1.5, m[0], 1e-5)
		assert.InDelta(t, 1.5, m[5], 1e-5)
		assert.InDelta(t, 1.5, m[10], 1e-5)
		assert.InDelta(t, 1.0, m[15], 1e-6)
	}
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	s := twoBoneSkeleton()
	s.Clips[0].Channels["root"].Rotations = []QuatKey{
		{Time: 0, Value: common.IdentityQuat},
		{Time: 10, Value: common.Quat{0, 0.7071068, 0, 0.7071068}},
	}

	for _, elapsed := range []float32{0, 0.3, 4.75, 9.999, 123.4} {
		first := Evaluate(s, 0, elapsed)
		second := Evaluate(s, 0, elapsed)
		assert.Equal(t, first, second, "elapsed %v", elapsed)
	}
}

func TestEvaluate_NoClipsYieldsBindPose(t *testing.T) {
	s := &Skeleton{
		Nodes:         []Node{{Name: "root", Transform: common.Translation(common.Vec3{1, 2, 3})}},
		GlobalInverse: common.Identity(),
	}
	s.AddBone("root", common.Identity())

	out := Evaluate(s, 0, 42)
	require.Len(t, out, 1)
	assert.Equal(t, common.Translation(common.Vec3{1, 2, 3}), out[0])
}

func TestEvaluate_ZeroBonesYieldsEmptySet(t *testing.T) {
	s := &Skeleton{Nodes: []Node{{Name: "root", Transform: common.Identity()}}}
	assert.Empty(t, Evaluate(s, 0, 1))
}

func TestEvaluate_NodeWithoutChannelUsesStaticTransform(t *testing.T) {
	s := twoBoneSkeleton()
	s.Nodes[1].Transform = common.Translation(common.Vec3{0, 1, 0})

	out := Evaluate(s, 0, 0)
	// root scale is 1 at t=0, so the child sits at its static offset
	assert.InDelta(t, 1.0, out[1][13], 1e-6)
}

func TestEvaluate_AppliesOffsetAndGlobalInverse(t *testing.T) {
	s := &Skeleton{
		Nodes:         []Node{{Name: "root", Transform: common.Translation(common.Vec3{5, 0, 0})}},
		GlobalInverse: common.Translation(common.Vec3{-5, 0, 0}),
	}
	s.AddBone("root", common.Translation(common.Vec3{0, 0, 2}))

	out := Evaluate(s, 0, 0)
	assert.InDelta(t, 0, out[0][12], 1e-6)
	assert.InDelta(t, 2, out[0][14], 1e-6)
}

func TestEvaluate_ClipIndexOutOfRangePanics(t *testing.T) {
	s := twoBoneSkeleton()
	requireLogicViolation(t, func() { Evaluate(s, 3, 1) })
}

func TestInterpolate_SingleKeyReturnedVerbatim(t *testing.T) {
	v := common.Vec3{1.25, -2, 3.5}
	q := common.Quat{0.1, 0.2, 0.3, 0.9}
	for _, tm := range []float32{-10, 0, 0.5, 7, 1e6} {
		assert.Equal(t, v, InterpolateVector([]VectorKey{{Time: 4, Value: v}}, tm))
		assert.Equal(t, q, InterpolateRotation([]QuatKey{{Time: 4, Value: q}}, tm))
	}
}

func TestInterpolate_BeforeFirstKeyClampsToFirstValue(t *testing.T) {
	keys := []VectorKey{
		{Time: 2, Value: common.Vec3{1, 1, 1}},
		{Time: 4, Value: common.Vec3{3, 3, 3}},
	}
	assert.Equal(t, common.Vec3{1, 1, 1}, InterpolateVector(keys, 0.5))
}

func TestInterpolate_NoBracketPanics(t *testing.T) {
	keys := []VectorKey{
		{Time: 0, Value: common.Vec3{}},
		{Time: 1, Value: common.Vec3{1, 1, 1}},
	}
	requireLogicViolation(t, func() { InterpolateVector(keys, 2) })
}

func TestAnimationTime_StaysWithinDuration(t *testing.T) {
	clip := &Clip{Duration: 37.5}
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		elapsed := (r.Float32()*2 - 1) * 10000
		at := AnimationTime(clip, elapsed)
		assert.GreaterOrEqual(t, at, float32(0))
		assert.Less(t, at, clip.Duration)
	}
}

func TestAnimationTime_DefaultsTicksPerSecond(t *testing.T) {
	clip := &Clip{Duration: 100}
	assert.InDelta(t, 25, AnimationTime(clip, 1), 1e-5)
}

func TestEvaluate_ValidSkeletonNeverHitsMissingBracket(t *testing.T) {
	s := twoBoneSkeleton()
	require.NoError(t, s.Validate())
	r := rand.New(rand.NewSource(11))
	assert.NotPanics(t, func() {
		for i := 0; i < 2000; i++ {
			Evaluate(s, 0, r.Float32()*1000)
		}
	})
}

func TestSlerp_ProducesUnitQuaternions(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	randomQuat := func() common.Quat {
		return common.Quat{r.Float32()*2 - 1, r.Float32()*2 - 1, r.Float32()*2 - 1, r.Float32()*2 - 1}.Normalize()
	}
	for i := 0; i < 500; i++ {
		a, b := randomQuat(), randomQuat()
		for _, f := range []float32{0, 0.1, 0.25, 0.5, 0.75, 0.99, 1} {
			assert.InDelta(t, 1.0, common.Slerp(a, b, f).Len(), 1e-5)
		}
	}
}

func TestSkeleton_AddBoneFirstSeenWins(t *testing.T) {
	s := &Skeleton{}
	assert.Equal(t, 0, s.AddBone("hip", common.Identity()))
	assert.Equal(t, 1, s.AddBone("knee", common.Identity()))
	assert.Equal(t, 0, s.AddBone("hip", common.Translation(common.Vec3{9, 9, 9})))
	assert.Equal(t, common.Identity(), s.Bones["hip"].Offset)
	assert.Equal(t, 2, s.BoneCount())
}

func TestSkeleton_AddBonePastMaxBonesPanics(t *testing.T) {
	s := &Skeleton{}
	for i := 0; i < MaxBones; i++ {
		s.AddBone(string(rune('A'+i%26))+string(rune('a'+i/26)), common.Identity())
	}
	requireLogicViolation(t, func() { s.AddBone("one-too-many", common.Identity()) })
}

func TestSkeleton_ValidateRejectsBadTracks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ch *Channel)
	}{
		{"empty translation", func(ch *Channel) { ch.Translations = nil }},
		{"non increasing", func(ch *Channel) {
			ch.Scales = []VectorKey{{Time: 0}, {Time: 10}, {Time: 10}}
		}},
		{"ends before duration", func(ch *Channel) {
			ch.Scales = []VectorKey{{Time: 0}, {Time: 5}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := twoBoneSkeleton()
			tt.mutate(s.Clips[0].Channels["root"])
			assert.Error(t, s.Validate())
		})
	}
}

func TestSkeleton_ValidateRejectsCycles(t *testing.T) {
	s := twoBoneSkeleton()
	s.Nodes[1].Children = []int{0}
	assert.Error(t, s.Validate())
}

func TestNewAnimator_Simple(t *testing.T) {
	a, err := NewAnimator(BackendTypeSimple)
	require.NoError(t, err)
	assert.Nil(t, a.BoneTransforms(3))
	assert.Nil(t, a.Skeleton())

	placement := common.Translation(common.Vec3{4, 0, 0})
	assert.Equal(t, placement, a.ModelMatrix(placement, 0))

	spun := a.ModelMatrix(placement, 1)
	assert.NotEqual(t, placement, spun)
	assert.InDelta(t, 4, spun[12], 1e-6)
}

func TestNewAnimator_SkeletalRequiresValidSkeleton(t *testing.T) {
	_, err := NewAnimator(BackendTypeSkeletal)
	assert.Error(t, err)

	bad := twoBoneSkeleton()
	bad.Clips[0].Channels["root"].Rotations = nil
	_, err = NewAnimator(BackendTypeSkeletal, WithSkeleton(bad, 0))
	assert.Error(t, err)

	_, err = NewAnimator(BackendTypeSkeletal, WithSkeleton(twoBoneSkeleton(), 5))
	assert.Error(t, err)

	a, err := NewAnimator(BackendTypeSkeletal, WithSkeleton(twoBoneSkeleton(), 0))
	require.NoError(t, err)
	assert.Len(t, a.BoneTransforms(5), 2)
	assert.Equal(t, common.Identity(), a.ModelMatrix(common.Identity(), 5))
}
