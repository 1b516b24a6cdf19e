// Package engine wires all flowline subsystems together: the store,
// the action registry, circuit breakers, the executor, the extension
// registry, and the scheduler. It exposes the orchestration operations
// (workflow lifecycle, execution start/cancel) the application layer
// calls.
//
// This package exists to break the import cycle: the root flowline
// package defines Entity and the sentinel errors (imported by workflow,
// execution, etc.) and so cannot import those packages back. The engine
// package sits above all subsystem packages and below the application
// layer.
package engine
