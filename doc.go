// Package flowline provides a workflow orchestration core: multi-step
// workflows defined as directed acyclic graphs, executed reliably against
// unreliable external actions.
//
// Flowline is designed as a library, not a service. Import it, configure a
// store, register action handlers, and drive workflows through the engine:
//
//	eng, err := engine.New(memory.New(), engine.WithLogger(logger))
//	wf, err := eng.CreateWorkflow(ctx, tenantID, def)
//	_, err = eng.PublishWorkflow(ctx, tenantID, wf.VersionID)
//	exec, err := eng.StartExecution(ctx, tenantID, wf.ID, input)
//
// # Architecture
//
// Flowline follows a composable store pattern where each subsystem
// (workflow, execution, cron) defines its own store interface and a single
// backend implements all of them. The resilience primitives (retry with
// backoff, per-action circuit breaking, saga-style compensation, and a
// distributed cron scheduler) live in their own packages and are wired
// together by the engine.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package flowline
