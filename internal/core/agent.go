package core

import "context"

// Agent is a long-running bus participant: a dispatcher, the scheduler, or
// a surface adapter loop.
type Agent interface {
	ID() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
