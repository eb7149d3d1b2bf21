package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyEnter = 257 // Enter key (GLFW)
	KeyEsc   = 256 // Escape key (GLFW)

	KeyA = 65 // A key (GLFW)
	KeyD = 68 // D key (GLFW)
	KeyS = 83 // S key (GLFW)
	KeyW = 87 // W key (GLFW)
)
