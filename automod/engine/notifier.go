package engine

import (
	"context"
)

// Interface for a type that can handle sending notifications
type Notifier interface {
	SendAction(ctx context.Context, rep *ActionReport) error
}
