// Package audithook is a Flowline extension that bridges lifecycle events
// to an immutable audit trail backend.
//
// Every workflow, execution, and schedule lifecycle hook emits a structured
// audit event through the [Recorder] interface. The extension assigns
// appropriate severity levels (info for normal operations, warning for
// retries, critical for terminal failures) and rich metadata (workflow name,
// step id, elapsed time, errors).
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return trail.Write(ctx, evt.Action, evt.Resource, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionExecutionFailed,
//	        audithook.ActionWorkflowPublished,
//	        audithook.ActionCompensationStarted,
//	    ),
//	)
package audithook
