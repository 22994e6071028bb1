package common

// Key codes delivered to the engine input callbacks. They are GLFW key values: printable keys use
// their upper-case ASCII code.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyA = 'A'
	KeyD = 'D'
	KeyE = 'E'
	KeyQ = 'Q'
	KeyS = 'S'
	KeyW = 'W'
)

// Function keys flip the optional passes.
const (
	KeyF1 = 290 + iota // SSAO
	KeyF2              // bloom
	KeyF3              // shadows
	KeyF4              // sky box
)
