package ports

import "context"

// Prober executes one read-only query against the live rendering surface
// and returns its value. Implementations must be safe for repeated calls
// and must not cache: every call observes the surface as it is now.
// Transport-level retry/backoff does not belong here.
type Prober interface {
	Probe(ctx context.Context, query string) (string, error)
}

// InjectionResult describes how an injection was delivered.
type InjectionResult struct {
	Method string
}

// Injector delivers a payload into the chat application's input surface.
type Injector interface {
	Inject(ctx context.Context, payload string) (InjectionResult, error)
}
