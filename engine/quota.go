package engine

// Quota answers per-tenant limit questions. A zero answer means
// unlimited. Implementations typically read a plan or billing service;
// StaticQuota covers the single-plan case.
type Quota interface {
	// MaxWorkflows limits distinct workflows a tenant may own.
	MaxWorkflows(tenantID string) int

	// MaxVersionsPerWorkflow limits versions of one workflow.
	MaxVersionsPerWorkflow(tenantID string) int

	// MaxConcurrentExecutions limits a tenant's in-flight executions.
	MaxConcurrentExecutions(tenantID string) int

	// MaxExecutionsPerHour limits how many executions a tenant may start
	// in any rolling hour.
	MaxExecutionsPerHour(tenantID string) int
}

// StaticQuota applies the same limits to every tenant. The zero value
// is fully unlimited.
type StaticQuota struct {
	Workflows            int
	VersionsPerWorkflow  int
	ConcurrentExecutions int
	ExecutionsPerHour    int
}

func (q StaticQuota) MaxWorkflows(string) int            { return q.Workflows }
func (q StaticQuota) MaxVersionsPerWorkflow(string) int  { return q.VersionsPerWorkflow }
func (q StaticQuota) MaxConcurrentExecutions(string) int { return q.ConcurrentExecutions }
func (q StaticQuota) MaxExecutionsPerHour(string) int    { return q.ExecutionsPerHour }

var _ Quota = StaticQuota{}
