package animator

import (
	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/chewxy/math32"
)

// BoneTransformSet holds one final skinning matrix per bone, indexed by Bone.Index.
type BoneTransformSet []common.Mat4

// Evaluate computes the skinning matrices of a skeleton for a clip at a point in time.
// The result depends only on its inputs, so repeated calls with the same arguments produce identical output.
// A skeleton without clips yields its bind pose and a skeleton without bones yields an empty set.
// Evaluate panics with a *common.LogicViolationError when clipIndex is out of range or when no keyframe
// pair brackets the sample time, which a skeleton that passes Validate never produces.
//
// Parameters:
//   - s: the skeleton to evaluate
//   - clipIndex: index into s.Clips
//   - elapsed: playback time in seconds
//
// Returns:
//   - BoneTransformSet: one matrix per bone
func Evaluate(s *Skeleton, clipIndex int, elapsed float32) BoneTransformSet {
	out := make(BoneTransformSet, s.BoneCount())
	if len(out) == 0 || len(s.Nodes) == 0 {
		return out
	}
	for i := range out {
		out[i] = common.Identity()
	}

	var clip *Clip
	var animTime float32
	if len(s.Clips) > 0 {
		if clipIndex < 0 || clipIndex >= len(s.Clips) {
			common.PanicLogicViolation("animator", "clip index %d out of range [0, %d)", clipIndex, len(s.Clips))
		}
		clip = s.Clips[clipIndex]
		animTime = AnimationTime(clip, elapsed)
	}

	evaluateNode(s, clip, animTime, s.Root, common.Identity(), out)
	return out
}

// AnimationTime converts elapsed seconds into the clip's tick time, wrapped into [0, Duration).
//
// Parameters:
//   - clip: the clip being played
//   - elapsed: playback time in seconds
//
// Returns:
//   - float32: the sample time in ticks
func AnimationTime(clip *Clip, elapsed float32) float32 {
	if clip.Duration <= 0 {
		return 0
	}
	tps := clip.TicksPerSecond
	if tps == 0 {
		tps = DefaultTicksPerSecond
	}
	t := math32.Mod(elapsed*tps, clip.Duration)
	if t < 0 {
		t += clip.Duration
	}
	// float32 rounding can land exactly on Duration after the negative wrap.
	if t >= clip.Duration {
		t = 0
	}
	return t
}

func evaluateNode(s *Skeleton, clip *Clip, animTime float32, index int, parent common.Mat4, out BoneTransformSet) {
	node := &s.Nodes[index]

	local := node.Transform
	if clip != nil {
		if ch, ok := clip.Channels[node.Name]; ok {
			t := common.Translation(InterpolateVector(ch.Translations, animTime))
			r := InterpolateRotation(ch.Rotations, animTime).Matrix()
			sc := common.Scaling(InterpolateVector(ch.Scales, animTime))
			local = t.Mul(r).Mul(sc)
		}
	}

	world := parent.Mul(local)
	if bone, ok := s.Bones[node.Name]; ok {
		out[bone.Index] = s.GlobalInverse.Mul(world).Mul(bone.Offset)
	}

	for _, c := range node.Children {
		evaluateNode(s, clip, animTime, c, world, out)
	}
}

// bracket returns the index i such that keys i and i+1 enclose t, and the blend factor between them.
// A time before the first key uses the first pair with factor 0.
func bracket(times func(int) float32, n int, t float32) (int, float32) {
	for i := 0; i < n-1; i++ {
		next := times(i + 1)
		if t < next {
			start := times(i)
			factor := (t - start) / (next - start)
			if factor < 0 {
				factor = 0
			}
			return i, factor
		}
	}
	common.PanicLogicViolation("animator", "time %v is not bracketed by %d keys", t, n)
	return 0, 0
}

// InterpolateVector samples a translation or scale track at time t.
// A single-key track returns its key verbatim.
//
// Parameters:
//   - keys: the track, ordered by time
//   - t: sample time in ticks
//
// Returns:
//   - common.Vec3: the interpolated value
func InterpolateVector(keys []VectorKey, t float32) common.Vec3 {
	if len(keys) == 1 {
		return keys[0].Value
	}
	i, f := bracket(func(i int) float32 { return keys[i].Time }, len(keys), t)
	return common.LerpVec3(keys[i].Value, keys[i+1].Value, f)
}

// InterpolateRotation samples a rotation track at time t with spherical linear interpolation.
// A single-key track returns its key verbatim.
//
// Parameters:
//   - keys: the track, ordered by time
//   - t: sample time in ticks
//
// Returns:
//   - common.Quat: the interpolated unit rotation
func InterpolateRotation(keys []QuatKey, t float32) common.Quat {
	if len(keys) == 1 {
		return keys[0].Value
	}
	i, f := bracket(func(i int) float32 { return keys[i].Time }, len(keys), t)
	return common.Slerp(keys[i].Value, keys[i+1].Value, f)
}
