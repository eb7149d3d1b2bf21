package animator

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bench/common"
)

// MaxBones is the number of bone matrices the skinning uniform block holds.
const MaxBones = 100

// DefaultTicksPerSecond is used when a clip declares a tick rate of zero.
const DefaultTicksPerSecond float32 = 25

// Node is one element of a skeleton's node tree.
type Node struct {
	// Name identifies the node and keys its animation channel.
	Name string

	// Transform is the static bind transform relative to the parent node.
	Transform common.Mat4

	// Children are indices into Skeleton.Nodes.
	Children []int
}

// Bone marks a node that deforms vertices.
type Bone struct {
	// Index is the stable slot this bone's matrix occupies in a BoneTransformSet.
	Index int

	// Offset is the inverse bind-pose matrix, mapping mesh space into bone space.
	Offset common.Mat4
}

// VectorKey is a timed translation or scale sample.
type VectorKey struct {
	// Time is the sample time in ticks.
	Time float32
	// Value is the sampled vector.
	Value common.Vec3
}

// QuatKey is a timed rotation sample.
type QuatKey struct {
	// Time is the sample time in ticks.
	Time float32
	// Value is the sampled rotation.
	Value common.Quat
}

// Channel holds the keyframe tracks that animate a single node.
// Every track must have at least one key, ordered by strictly increasing time.
type Channel struct {
	// Node is the name of the animated node.
	Node string

	Translations []VectorKey
	Rotations    []QuatKey
	Scales       []VectorKey
}

// Clip is a single named animation.
type Clip struct {
	// Name is the animation identifier.
	Name string

	// Duration is the clip length in ticks.
	Duration float32

	// TicksPerSecond is the playback rate. Zero selects DefaultTicksPerSecond.
	TicksPerSecond float32

	// Channels maps node names to their tracks.
	Channels map[string]*Channel
}

// Skeleton is a node tree with one root, the bones that live on it and the clips that animate it.
type Skeleton struct {
	// Nodes is the flattened node tree. Nodes[Root] is the root.
	Nodes []Node

	// Root is the index of the root node.
	Root int

	// Bones maps node names to bone data. Bone names are unique.
	Bones map[string]Bone

	// GlobalInverse is the inverse of the root's world transform, applied to every final bone matrix.
	GlobalInverse common.Mat4

	// Clips are the animations bundled with the skeleton.
	Clips []*Clip
}

// BoneCount returns the number of bones, which is also the length of every BoneTransformSet
// produced for this skeleton.
func (s *Skeleton) BoneCount() int {
	if s == nil {
		return 0
	}
	return len(s.Bones)
}

// AddBone registers a bone under name using first-seen-wins numbering: the first registration
// assigns the next free index and later registrations of the same name return that index unchanged.
//
// Parameters:
//   - name: the bone (node) name
//   - offset: the inverse bind-pose matrix
//
// Returns:
//   - int: the stable bone index
func (s *Skeleton) AddBone(name string, offset common.Mat4) int {
	if s.Bones == nil {
		s.Bones = make(map[string]Bone)
	}
	if b, ok := s.Bones[name]; ok {
		return b.Index
	}
	idx := len(s.Bones)
	if idx >= MaxBones {
		common.PanicLogicViolation("animator", "bone %q would take index %d, past MaxBones %d", name, idx, MaxBones)
	}
	s.Bones[name] = Bone{Index: idx, Offset: offset}
	return idx
}

// Validate checks the structural rules the evaluator relies on: a root in range, child indices in range,
// a tree without cycles or shared children, and for every channel non-empty tracks with strictly increasing
// times whose last key covers the clip duration.
//
// Returns:
//   - error: a description of the first rule that fails, or nil
func (s *Skeleton) Validate() error {
	if s == nil {
		return fmt.Errorf("skeleton is nil")
	}
	if len(s.Nodes) == 0 {
		if len(s.Bones) > 0 {
			return fmt.Errorf("skeleton has %d bones but no nodes", len(s.Bones))
		}
		return nil
	}
	if s.Root < 0 || s.Root >= len(s.Nodes) {
		return fmt.Errorf("root index %d out of range [0, %d)", s.Root, len(s.Nodes))
	}

	visited := make([]bool, len(s.Nodes))
	stack := []int{s.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			return fmt.Errorf("node %q is reachable twice", s.Nodes[n].Name)
		}
		visited[n] = true
		for _, c := range s.Nodes[n].Children {
			if c < 0 || c >= len(s.Nodes) {
				return fmt.Errorf("node %q has child index %d out of range", s.Nodes[n].Name, c)
			}
			stack = append(stack, c)
		}
	}

	seen := make(map[int]string, len(s.Bones))
	for name, b := range s.Bones {
		if b.Index < 0 || b.Index >= len(s.Bones) || b.Index >= MaxBones {
			return fmt.Errorf("bone %q has index %d out of range", name, b.Index)
		}
		if other, dup := seen[b.Index]; dup {
			return fmt.Errorf("bones %q and %q share index %d", name, other, b.Index)
		}
		seen[b.Index] = name
	}

	for ci, clip := range s.Clips {
		if clip == nil {
			return fmt.Errorf("clip %d is nil", ci)
		}
		for name, ch := range clip.Channels {
			if err := validateChannel(ch, clip.Duration); err != nil {
				return fmt.Errorf("clip %q channel %q: %w", clip.Name, name, err)
			}
		}
	}
	return nil
}

func validateChannel(ch *Channel, duration float32) error {
	if ch == nil {
		return fmt.Errorf("channel is nil")
	}
	tTimes := make([]float32, len(ch.Translations))
	for i, k := range ch.Translations {
		tTimes[i] = k.Time
	}
	rTimes := make([]float32, len(ch.Rotations))
	for i, k := range ch.Rotations {
		rTimes[i] = k.Time
	}
	sTimes := make([]float32, len(ch.Scales))
	for i, k := range ch.Scales {
		sTimes[i] = k.Time
	}
	for _, track := range []struct {
		name  string
		times []float32
	}{{"translation", tTimes}, {"rotation", rTimes}, {"scale", sTimes}} {
		if len(track.times) == 0 {
			return fmt.Errorf("%s track has no keys", track.name)
		}
		for i := 1; i < len(track.times); i++ {
			if track.times[i] <= track.times[i-1] {
				return fmt.Errorf("%s track key %d time %v is not after %v", track.name, i, track.times[i], track.times[i-1])
			}
		}
		if len(track.times) > 1 && track.times[len(track.times)-1] < duration {
			return fmt.Errorf("%s track ends at %v before clip duration %v", track.name, track.times[len(track.times)-1], duration)
		}
	}
	return nil
}
