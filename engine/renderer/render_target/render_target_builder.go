package render_target

// RenderTargetBuilderOption is a functional option used to configure a RenderTarget during Build.
type RenderTargetBuilderOption func(*renderTarget)

// WithManualFramebuffers skips the per-slot framebuffers. The owner creates framebuffers itself with
// NewFramebuffer, for instance one per bloom mip level since each level has its own size.
//
// Returns:
//   - RenderTargetBuilderOption: a function that disables automatic framebuffers
func WithManualFramebuffers() RenderTargetBuilderOption {
	return func(rt *renderTarget) {
		rt.manualFramebuffers = true
	}
}
