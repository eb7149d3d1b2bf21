package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/Carmen-Shannon/oxy-bench/engine/renderer/animator"
)

// extractClips converts every glTF animation into a Clip keyed by unique node name.
//
// glTF times are seconds, so clips use one tick per second. Each animated node gets all three tracks:
// a track the file does not animate holds the node's bind value, and a track that ends before the clip
// duration gets a hold key at the duration.
//
// Returns:
//   - []*animator.Clip: one clip per glTF animation, in document order
//   - error: error if a sampler or accessor cannot be read
func (imp *gltfImport) extractClips() ([]*animator.Clip, error) {
	doc := imp.file.doc
	clips := make([]*animator.Clip, 0, len(doc.Animations))
	for a := range doc.Animations {
		clip, err := imp.extractClip(a)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}
	return clips, nil
}

func (imp *gltfImport) extractClip(animIndex int) (*animator.Clip, error) {
	doc := imp.file.doc
	anim := &doc.Animations[animIndex]
	name := anim.Name
	if name == "" {
		name = fmt.Sprintf("animation_%d", animIndex)
	}

	clip := &animator.Clip{
		Name:           name,
		TicksPerSecond: 1,
		Channels:       make(map[string]*animator.Channel),
	}
	channelNodes := make(map[string]int)

	for c := range anim.Channels {
		ch := &anim.Channels[c]
		if ch.Target.Node == nil {
			continue
		}
		nodeIndex := *ch.Target.Node
		if nodeIndex < 0 || nodeIndex >= len(doc.Nodes) {
			return nil, fmt.Errorf("animation %q channel %d: node index %d out of range", name, c, nodeIndex)
		}
		if ch.Sampler < 0 || ch.Sampler >= len(anim.Samplers) {
			return nil, fmt.Errorf("animation %q channel %d: sampler index %d out of range", name, c, ch.Sampler)
		}
		sampler := &anim.Samplers[ch.Sampler]

		var width int
		var elemType string
		switch ch.Target.Path {
		case gltfPathTranslation, gltfPathScale:
			width, elemType = 3, gltfTypeVec3
		case gltfPathRotation:
			width, elemType = 4, gltfTypeVec4
		default:
			continue
		}

		times, err := imp.file.readFloats(sampler.Input, gltfTypeScalar)
		if err != nil {
			return nil, fmt.Errorf("animation %q channel %d: input: %w", name, c, err)
		}
		values, err := imp.file.readFloats(sampler.Output, elemType)
		if err != nil {
			return nil, fmt.Errorf("animation %q channel %d: output: %w", name, c, err)
		}
		values, err = sampleValues(values, len(times), width, sampler.Interpolation == gltfInterpolationCubicSpline)
		if err != nil {
			return nil, fmt.Errorf("animation %q channel %d: %w", name, c, err)
		}

		nodeName := imp.names[nodeIndex]
		target, ok := clip.Channels[nodeName]
		if !ok {
			target = &animator.Channel{Node: nodeName}
			clip.Channels[nodeName] = target
			channelNodes[nodeName] = nodeIndex
		}

		for k, t := range times {
			if t > clip.Duration {
				clip.Duration = t
			}
			v := values[k*width : (k+1)*width]
			switch ch.Target.Path {
			case gltfPathTranslation:
				target.Translations = appendVectorKey(target.Translations, t, common.Vec3{v[0], v[1], v[2]})
			case gltfPathScale:
				target.Scales = appendVectorKey(target.Scales, t, common.Vec3{v[0], v[1], v[2]})
			case gltfPathRotation:
				target.Rotations = appendQuatKey(target.Rotations, t, common.Quat{v[0], v[1], v[2], v[3]}.Normalize())
			}
		}
	}

	for nodeName, ch := range clip.Channels {
		completeChannel(ch, &doc.Nodes[channelNodes[nodeName]], clip.Duration)
	}
	return clip, nil
}

// sampleValues returns one value per key. Cubic spline outputs store (in-tangent, value, out-tangent)
// triples; only the value is kept and playback interpolates linearly.
func sampleValues(values []float32, keys, width int, cubic bool) ([]float32, error) {
	stride := width
	if cubic {
		stride = width * 3
	}
	if len(values) < keys*stride {
		return nil, fmt.Errorf("sampler has %d output values for %d keys", len(values), keys)
	}
	if !cubic {
		return values, nil
	}
	out := make([]float32, keys*width)
	for k := 0; k < keys; k++ {
		copy(out[k*width:(k+1)*width], values[k*stride+width:k*stride+2*width])
	}
	return out, nil
}

// appendVectorKey drops keys that do not advance time.
func appendVectorKey(keys []animator.VectorKey, t float32, v common.Vec3) []animator.VectorKey {
	if n := len(keys); n > 0 && t <= keys[n-1].Time {
		return keys
	}
	return append(keys, animator.VectorKey{Time: t, Value: v})
}

func appendQuatKey(keys []animator.QuatKey, t float32, q common.Quat) []animator.QuatKey {
	if n := len(keys); n > 0 && t <= keys[n-1].Time {
		return keys
	}
	return append(keys, animator.QuatKey{Time: t, Value: q})
}

// completeChannel fills empty tracks with the bind value and pads multi-key tracks to the clip duration.
func completeChannel(ch *animator.Channel, node *gltfNode, duration float32) {
	t, r, s := nodeTRS(node)
	if len(ch.Translations) == 0 {
		ch.Translations = []animator.VectorKey{{Time: 0, Value: t}}
	}
	if len(ch.Rotations) == 0 {
		ch.Rotations = []animator.QuatKey{{Time: 0, Value: r}}
	}
	if len(ch.Scales) == 0 {
		ch.Scales = []animator.VectorKey{{Time: 0, Value: s}}
	}

	if n := len(ch.Translations); n > 1 && ch.Translations[n-1].Time < duration {
		ch.Translations = append(ch.Translations, animator.VectorKey{Time: duration, Value: ch.Translations[n-1].Value})
	}
	if n := len(ch.Rotations); n > 1 && ch.Rotations[n-1].Time < duration {
		ch.Rotations = append(ch.Rotations, animator.QuatKey{Time: duration, Value: ch.Rotations[n-1].Value})
	}
	if n := len(ch.Scales); n > 1 && ch.Scales[n-1].Time < duration {
		ch.Scales = append(ch.Scales, animator.VectorKey{Time: duration, Value: ch.Scales[n-1].Value})
	}
}
