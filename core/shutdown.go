package core

import "context"

// ShutdownFunc releases one resource during graceful shutdown. ctx carries
// the remaining shutdown budget.
type ShutdownFunc func(ctx context.Context) error
