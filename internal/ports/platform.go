package ports

import "context"

// Platform is a delivery channel the bridge serves: it listens for inbound
// messages, hands them to the message service, and renders streamed
// responses back out. Run blocks until ctx is cancelled or the platform
// fails.
type Platform interface {
	Name() string
	Run(ctx context.Context) error
}
