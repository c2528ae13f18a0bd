package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/projects"
)

func (a *app) newGrantCommand() *Command {
	cmd := &Command{
		Name:        "grant",
		Description: "Add a user to a project",
		Flags:       newFlagSet("grant", a.out),
	}

	user := cmd.Flags.String("user", "", "User id or email")
	project := cmd.Flags.Int64("project", 0, "Project id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *project <= 0 {
			return fmt.Errorf("user and project are required")
		}

		return a.with(func(ctx context.Context, env *Env) error {
			identity, p, err := resolveMembership(ctx, env, *user, *project)
			if err != nil {
				return err
			}

			err = env.Members.AddMember(ctx, p.ID, identity.ID)
			if errors.Is(err, projects.ErrMemberExists) {
				fmt.Fprintf(a.out, "user %d is already a member of project %d\n", identity.ID, p.ID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to grant access: %w", err)
			}
			a.invalidate(ctx, env, p.ID, identity.ID)
			audit.Record(ctx, env.Audit, audit.NewEvent(nil, audit.EventTypeAdminMemberAdd, audit.EventStatusSuccess).
				WithResource(audit.ResourceTypeProject, formatID(p.ID)).
				WithMetadata("user_id", identity.ID))

			fmt.Fprintf(a.out, "granted user %d <%s> access to project %d (%s)\n", identity.ID, identity.Email, p.ID, p.Name)
			return nil
		})
	}
	return cmd
}

func (a *app) newRevokeCommand() *Command {
	cmd := &Command{
		Name:        "revoke",
		Description: "Remove a user from a project",
		Flags:       newFlagSet("revoke", a.out),
	}

	user := cmd.Flags.String("user", "", "User id or email")
	project := cmd.Flags.Int64("project", 0, "Project id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" || *project <= 0 {
			return fmt.Errorf("user and project are required")
		}

		return a.with(func(ctx context.Context, env *Env) error {
			identity, p, err := resolveMembership(ctx, env, *user, *project)
			if err != nil {
				return err
			}

			err = env.Members.RemoveMember(ctx, p.ID, identity.ID)
			if errors.Is(err, projects.ErrMemberNotFound) {
				return fmt.Errorf("user %d is not a member of project %d", identity.ID, p.ID)
			}
			if err != nil {
				return fmt.Errorf("failed to revoke access: %w", err)
			}
			a.invalidate(ctx, env, p.ID, identity.ID)
			audit.Record(ctx, env.Audit, audit.NewEvent(nil, audit.EventTypeAdminMemberRemove, audit.EventStatusSuccess).
				WithResource(audit.ResourceTypeProject, formatID(p.ID)).
				WithMetadata("user_id", identity.ID))

			fmt.Fprintf(a.out, "revoked user %d <%s> from project %d (%s)\n", identity.ID, identity.Email, p.ID, p.Name)
			return nil
		})
	}
	return cmd
}

func resolveMembership(ctx context.Context, env *Env, userRef string, projectID int64) (*auth.Identity, *projects.Project, error) {
	identity, err := resolveUser(ctx, env.Users, userRef)
	if err != nil {
		return nil, nil, err
	}
	p, err := env.Members.GetProject(ctx, projectID)
	if errors.Is(err, projects.ErrProjectNotFound) {
		return nil, nil, fmt.Errorf("project %d not found", projectID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up project %d: %w", projectID, err)
	}
	return identity, p, nil
}

// invalidate drops the cached decision. A failure is printed, not returned;
// the entry still expires after the cache TTL.
func (a *app) invalidate(ctx context.Context, env *Env, projectID, userID int64) {
	if env.Cache == nil {
		fmt.Fprintf(a.out, "note: no shared cache configured, running servers apply this change within %s\n", env.CacheTTL)
		return
	}
	if err := env.Cache.Invalidate(ctx, projectID, userID); err != nil {
		fmt.Fprintf(a.out, "warning: failed to invalidate cached membership: %v\n", err)
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
