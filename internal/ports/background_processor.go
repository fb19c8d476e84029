package ports

import "context"

// BackgroundProcessor runs until ctx is cancelled.
type BackgroundProcessor interface {
	Start(ctx context.Context) error
}
