package event

import "context"

// Publisher delivers committed events to observers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}
