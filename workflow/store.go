package workflow

import (
	"context"

	"github.com/xraph/flowline/id"
)

// ListOpts controls pagination for definition list queries.
type ListOpts struct {
	// Limit is the maximum number of definitions to return. Zero means
	// no limit.
	Limit int
	// Offset is the number of definitions to skip.
	Offset int
	// Status filters by lifecycle status. Empty means all statuses.
	Status Status
}

// Store defines the persistence contract for workflow definitions.
// All lookups are tenant-scoped.
type Store interface {
	// CreateDefinition persists a new workflow version.
	CreateDefinition(ctx context.Context, def *Definition) error

	// UpdateDefinition persists changes to an existing version.
	UpdateDefinition(ctx context.Context, def *Definition) error

	// GetDefinition retrieves the latest version of a workflow.
	GetDefinition(ctx context.Context, tenantID string, workflowID id.WorkflowID) (*Definition, error)

	// GetVersion retrieves one specific workflow version.
	GetVersion(ctx context.Context, tenantID string, versionID id.VersionID) (*Definition, error)

	// ListDefinitions returns the latest version of each workflow owned
	// by a tenant.
	ListDefinitions(ctx context.Context, tenantID string, opts ListOpts) ([]*Definition, error)

	// ListVersions returns every version of one workflow, oldest first.
	ListVersions(ctx context.Context, tenantID string, workflowID id.WorkflowID) ([]*Definition, error)

	// CountDefinitions returns the number of distinct workflows a tenant
	// owns. Used for quota checks.
	CountDefinitions(ctx context.Context, tenantID string) (int, error)

	// CountVersions returns the number of versions of one workflow.
	CountVersions(ctx context.Context, tenantID string, workflowID id.WorkflowID) (int, error)
}
