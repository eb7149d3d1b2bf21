// Package shaders holds the skinned shader pair.
//
// The GLSL sources are compiled to SPIR-V for the Vulkan backend, which loads skinned.vert.spv and
// skinned.frag.spv from the configured shader directory at startup. The WGSL variant is embedded.
package shaders

import (
	_ "embed"
)

//go:generate glslc skinned.vert -o skinned.vert.spv
//go:generate glslc skinned.frag -o skinned.frag.spv

// SkinnedWGSL is the WGSL variant of the skinned shader pair. Its vertex entry point is vs_main and its
// fragment entry point is fs_main. Group 0 matches the Vulkan descriptor set with diffuse and specular
// samplers split out. Group 1 holds the per-draw matrices that Vulkan passes as push constants.
//
//go:embed skinned.wgsl
var SkinnedWGSL string
