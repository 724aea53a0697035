package agent

import "context"

// Invoker sends one prompt to a generative model and returns its raw text.
//
// Implementations report failures as *UpstreamRequestError or
// *UpstreamFormatError and never retry.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, prompt string) (string, error)

// Invoke calls f(ctx, prompt).
func (f InvokerFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
