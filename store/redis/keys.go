package redis

// Redis key naming conventions for flowline data.
// All keys are prefixed with "flowline:" to avoid collisions.

const keyPrefix = "flowline:"

// ── Workflow keys ──

// defKey returns the key for one workflow version: flowline:def:{versionID}
func defKey(versionID string) string { return keyPrefix + "def:" + versionID }

// workflowsKey returns the Set of a tenant's workflow ids.
func workflowsKey(tenantID string) string { return keyPrefix + "workflows:" + tenantID }

// versionsKey returns the Set of version ids for one workflow.
func versionsKey(tenantID, workflowID string) string {
	return keyPrefix + "versions:" + tenantID + ":" + workflowID
}

// ── Execution keys ──

// execKey returns the key for an execution entity: flowline:exec:{id}
func execKey(id string) string { return keyPrefix + "exec:" + id }

// execIDsKey returns the Set of a tenant's execution ids.
func execIDsKey(tenantID string) string { return keyPrefix + "execs:" + tenantID }

// idempotencyKey returns the Hash mapping a tenant's idempotency keys
// to execution ids.
func idempotencyKey(tenantID string) string { return keyPrefix + "idem:" + tenantID }

// ── Schedule keys ──

// schedKey returns the key for a scheduled job entity: flowline:sched:{id}
func schedKey(id string) string { return keyPrefix + "sched:" + id }

// schedIDsKey is the Set tracking all schedule ids for enumeration.
const schedIDsKey = keyPrefix + "scheds"

// schedWorkflowsKey maps "{tenant}:{workflowID}" to a schedule id for
// duplicate detection.
const schedWorkflowsKey = keyPrefix + "sched_workflows"

// schedLockKey returns the lock key for one schedule.
func schedLockKey(id string) string { return keyPrefix + "sched_lock:" + id }
