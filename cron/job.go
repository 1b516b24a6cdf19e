package cron

import (
	"time"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/id"
)

// Job is one scheduled workflow: a cron expression plus the workflow it
// starts. One job exists per scheduled workflow; it is persisted so any
// scheduler instance can take over.
type Job struct {
	flowline.Entity

	ID         id.ScheduleID `json:"id"`
	WorkflowID id.WorkflowID `json:"workflowId"`
	TenantID   string        `json:"tenantId"`

	// Expression is a five-field cron expression.
	Expression string `json:"expression"`

	// Timezone is an IANA zone name. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	NextRun time.Time  `json:"nextRun"`
	LastRun *time.Time `json:"lastRun,omitempty"`
	Enabled bool       `json:"enabled"`
}

// Due reports whether the job should fire at now.
func (j *Job) Due(now time.Time) bool {
	return j.Enabled && !j.NextRun.IsZero() && !j.NextRun.After(now)
}
