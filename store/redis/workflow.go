package redis

import (
	"context"
	"fmt"
	"sort"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/id"
	"github.com/xraph/flowline/workflow"
)

// Definitions carry full json tags, so they are stored directly rather
// than through a separate storage model.

// CreateDefinition persists a new workflow version.
func (s *Store) CreateDefinition(ctx context.Context, def *workflow.Definition) error {
	vID := def.VersionID.String()
	key := defKey(vID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("flowline/redis: create definition exists: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: version %s already exists", flowline.ErrInvalidState, vID)
	}

	if setErr := s.setEntity(ctx, key, def); setErr != nil {
		return fmt.Errorf("flowline/redis: create definition set: %w", setErr)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, workflowsKey(def.TenantID), def.ID.String())
	pipe.SAdd(ctx, versionsKey(def.TenantID, def.ID.String()), vID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowline/redis: create definition indexes: %w", err)
	}
	return nil
}

// UpdateDefinition persists changes to an existing version.
func (s *Store) UpdateDefinition(ctx context.Context, def *workflow.Definition) error {
	key := defKey(def.VersionID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("flowline/redis: update definition exists: %w", err)
	}
	if !exists {
		return flowline.ErrVersionNotFound
	}

	cp := *def
	cp.UpdatedAt = now()
	if setErr := s.setEntity(ctx, key, &cp); setErr != nil {
		return fmt.Errorf("flowline/redis: update definition set: %w", setErr)
	}
	return nil
}

// GetDefinition retrieves the latest version of a workflow.
func (s *Store) GetDefinition(ctx context.Context, tenantID string, workflowID id.WorkflowID) (*workflow.Definition, error) {
	versions, err := s.loadVersions(ctx, tenantID, workflowID.String())
	if err != nil {
		return nil, err
	}

	var latest *workflow.Definition
	for _, def := range versions {
		if latest == nil || def.Version > latest.Version {
			latest = def
		}
	}
	if latest == nil {
		return nil, flowline.ErrWorkflowNotFound
	}
	return latest, nil
}

// GetVersion retrieves one specific workflow version.
func (s *Store) GetVersion(ctx context.Context, tenantID string, versionID id.VersionID) (*workflow.Definition, error) {
	var def workflow.Definition
	if err := s.getEntity(ctx, defKey(versionID.String()), &def); err != nil {
		if isRedisNil(err) {
			return nil, flowline.ErrVersionNotFound
		}
		return nil, fmt.Errorf("flowline/redis: get version: %w", err)
	}
	if def.TenantID != tenantID {
		return nil, flowline.ErrVersionNotFound
	}
	return &def, nil
}

// ListDefinitions returns the latest version of each workflow owned by
// a tenant, oldest workflow first.
func (s *Store) ListDefinitions(ctx context.Context, tenantID string, opts workflow.ListOpts) ([]*workflow.Definition, error) {
	wfIDs, err := s.client.SMembers(ctx, workflowsKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("flowline/redis: list definitions: %w", err)
	}

	result := make([]*workflow.Definition, 0, len(wfIDs))
	for _, wfID := range wfIDs {
		latest, getErr := s.latestOf(ctx, tenantID, wfID)
		if getErr != nil || latest == nil {
			continue
		}
		if opts.Status != "" && latest.Status != opts.Status {
			continue
		}
		result = append(result, latest)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ListVersions returns every version of one workflow, oldest first.
func (s *Store) ListVersions(ctx context.Context, tenantID string, workflowID id.WorkflowID) ([]*workflow.Definition, error) {
	versions, err := s.loadVersions(ctx, tenantID, workflowID.String())
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, k int) bool {
		return versions[i].Version < versions[k].Version
	})
	return versions, nil
}

// CountDefinitions returns the number of distinct workflows a tenant
// owns.
func (s *Store) CountDefinitions(ctx context.Context, tenantID string) (int, error) {
	n, err := s.client.SCard(ctx, workflowsKey(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("flowline/redis: count definitions: %w", err)
	}
	return int(n), nil
}

// CountVersions returns the number of versions of one workflow.
func (s *Store) CountVersions(ctx context.Context, tenantID string, workflowID id.WorkflowID) (int, error) {
	n, err := s.client.SCard(ctx, versionsKey(tenantID, workflowID.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("flowline/redis: count versions: %w", err)
	}
	return int(n), nil
}

// loadVersions reads every persisted version of one workflow, skipping
// malformed records.
func (s *Store) loadVersions(ctx context.Context, tenantID, workflowID string) ([]*workflow.Definition, error) {
	vIDs, err := s.client.SMembers(ctx, versionsKey(tenantID, workflowID)).Result()
	if err != nil {
		return nil, fmt.Errorf("flowline/redis: list versions: %w", err)
	}

	versions := make([]*workflow.Definition, 0, len(vIDs))
	for _, vID := range vIDs {
		var def workflow.Definition
		if getErr := s.getEntity(ctx, defKey(vID), &def); getErr != nil {
			continue
		}
		versions = append(versions, &def)
	}
	return versions, nil
}

// latestOf returns the highest-numbered version of one workflow, or nil.
func (s *Store) latestOf(ctx context.Context, tenantID, workflowID string) (*workflow.Definition, error) {
	versions, err := s.loadVersions(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	var latest *workflow.Definition
	for _, def := range versions {
		if latest == nil || def.Version > latest.Version {
			latest = def
		}
	}
	return latest, nil
}
