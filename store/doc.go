// Package store defines the aggregate persistence interface.
//
// Each subsystem (workflow, execution, cron) defines its own store
// interface. The composite [Store] composes them all. A single backend
// need only implement Store to satisfy every subsystem's persistence
// contract.
//
// The composite interface:
//
//	type Store interface {
//	    workflow.Store
//	    execution.Store
//	    cron.Store
//
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/redis — Redis backend using go-redis/v9
package store
