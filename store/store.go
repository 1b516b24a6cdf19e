package store

import (
	"context"

	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/workflow"
)

// Store is the aggregate persistence interface. Each subsystem store is
// a composable interface; a single backend implements all of them.
type Store interface {
	workflow.Store
	execution.Store
	cron.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
