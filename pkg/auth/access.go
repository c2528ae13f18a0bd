package auth

import (
	"context"
	"fmt"

	"github.com/platinummonkey/workbench/pkg/observability"
)

// MembershipStore answers the project membership test
type MembershipStore interface {
	IsMember(ctx context.Context, userID, projectID int64) (bool, error)
}

// ProjectLookup reports whether a project exists
type ProjectLookup interface {
	ProjectExists(ctx context.Context, projectID int64) (bool, error)
}

// AccessChecker decides whether identities may touch a project
type AccessChecker struct {
	projects ProjectLookup
	members  MembershipStore
	metrics  *observability.Metrics
}

// NewAccessChecker creates an access checker. metrics may be nil.
func NewAccessChecker(projects ProjectLookup, members MembershipStore, metrics *observability.Metrics) *AccessChecker {
	return &AccessChecker{projects: projects, members: members, metrics: metrics}
}

// CanAccess reports whether identity may read or modify projectID.
// Administrators always can; everyone else needs membership.
func (c *AccessChecker) CanAccess(ctx context.Context, identity *Identity, projectID int64) (bool, error) {
	if identity == nil {
		return false, nil
	}
	if identity.Administrator() {
		return true, nil
	}
	ok, err := c.members.IsMember(ctx, identity.ID, projectID)
	if err != nil {
		return false, fmt.Errorf("failed to check project membership: %w", err)
	}
	return ok, nil
}

// Authorize resolves the project first and then the membership, so a missing
// project is NotFound for everyone.
func (c *AccessChecker) Authorize(ctx context.Context, identity *Identity, projectID int64) error {
	if identity == nil {
		c.metrics.RecordDecision("project", "unauthenticated")
		return NewError(KindUnauthenticated, "")
	}

	exists, err := c.projects.ProjectExists(ctx, projectID)
	if err != nil {
		c.metrics.RecordDecision("project", "error")
		return fmt.Errorf("failed to look up project: %w", err)
	}
	if !exists {
		c.metrics.RecordDecision("project", "not_found")
		return NewError(KindNotFound, "project not found")
	}

	ok, err := c.CanAccess(ctx, identity, projectID)
	if err != nil {
		c.metrics.RecordDecision("project", "error")
		return err
	}
	if !ok {
		c.metrics.RecordDecision("project", "forbidden")
		return NewError(KindForbidden, "no access to this project")
	}
	c.metrics.RecordDecision("project", "allowed")
	return nil
}
