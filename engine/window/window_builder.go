package window

// WindowBuilderOption configures a window before it is created.
type WindowBuilderOption func(*engineWindow)

// WithTitle sets the title bar text.
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the initial size in screen coordinates.
//
// Parameters:
//   - width, height: the size
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.width, w.height = width, height
	}
}

// WithSizeLimits bounds how far the user can resize the window.
//
// Parameters:
//   - minWidth, minHeight: the smallest size
//   - maxWidth, maxHeight: the largest size
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSizeLimits(minWidth, minHeight, maxWidth, maxHeight int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.minSize = [2]int{minWidth, minHeight}
		w.maxSize = [2]int{maxWidth, maxHeight}
	}
}

// WithResizable controls whether the user can drag the window borders. Defaults to true.
func WithResizable(resizable bool) WindowBuilderOption {
	return func(w *engineWindow) {
		w.resizable = resizable
	}
}

// WithCallbacks sets the event callbacks up front. The engine replaces them with SetCallbacks.
func WithCallbacks(cb Callbacks) WindowBuilderOption {
	return func(w *engineWindow) {
		w.callbacks = cb
	}
}
