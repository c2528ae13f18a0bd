package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/users"
)

func (a *app) newCreateUserCommand() *Command {
	cmd := &Command{
		Name:        "create-user",
		Description: "Create an account",
		Flags:       newFlagSet("create-user", a.out),
	}

	email := cmd.Flags.String("email", "", "Email address")
	name := cmd.Flags.String("name", "", "Display name")
	role := cmd.Flags.String("role", string(auth.RoleStandard), "Role: administrator, standard or client")
	password := cmd.Flags.String("password", "", "Password; read from stdin when empty")
	inactive := cmd.Flags.Bool("inactive", false, "Create the account disabled")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" || *name == "" {
			return fmt.Errorf("email and name are required")
		}
		pw, err := a.password(*password)
		if err != nil {
			return err
		}
		parsed, err := auth.ParseRole(*role)
		if err != nil {
			return err
		}
		active := !*inactive

		return a.with(func(ctx context.Context, env *Env) error {
			req := &users.CreateUserRequest{
				Email:    *email,
				Name:     *name,
				Password: pw,
				Role:     parsed,
				IsActive: &active,
			}
			if err := req.Validate(); err != nil {
				return err
			}
			identity, err := env.Users.Create(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			audit.Record(ctx, env.Audit, audit.NewEvent(nil, audit.EventTypeAdminUserCreate, audit.EventStatusSuccess).
				WithResource(audit.ResourceTypeUser, identity.Subject()).
				WithMessage("created from the admin command line").
				WithMetadata("role", string(identity.EffectiveRole())))

			fmt.Fprintf(a.out, "created user %d <%s> role=%s\n", identity.ID, identity.Email, identity.EffectiveRole())
			return nil
		})
	}
	return cmd
}

func (a *app) newResetPasswordCommand() *Command {
	cmd := &Command{
		Name:        "reset-password",
		Description: "Set a new password for an account",
		Flags:       newFlagSet("reset-password", a.out),
	}

	user := cmd.Flags.String("user", "", "User id or email")
	password := cmd.Flags.String("password", "", "New password; read from stdin when empty")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("user is required")
		}
		pw, err := a.password(*password)
		if err != nil {
			return err
		}

		return a.with(func(ctx context.Context, env *Env) error {
			identity, err := resolveUser(ctx, env.Users, *user)
			if err != nil {
				return err
			}
			if err := env.Users.SetPassword(ctx, identity.ID, pw); err != nil {
				return fmt.Errorf("failed to set password: %w", err)
			}
			audit.Record(ctx, env.Audit, audit.NewEvent(nil, audit.EventTypeAdminPasswordReset, audit.EventStatusSuccess).
				WithResource(audit.ResourceTypeUser, identity.Subject()))

			fmt.Fprintf(a.out, "password updated for user %d <%s>\n", identity.ID, identity.Email)
			return nil
		})
	}
	return cmd
}

// password returns flagValue or the first line of stdin
func (a *app) password(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if a.in == nil {
		return "", fmt.Errorf("password is required")
	}
	line, err := bufio.NewReader(a.in).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", fmt.Errorf("password is required")
	}
	return line, nil
}

// resolveUser accepts a numeric id or an email address
func resolveUser(ctx context.Context, store UserStore, ref string) (*auth.Identity, error) {
	var (
		identity *auth.Identity
		err      error
	)
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		identity, err = store.GetByID(ctx, id)
	} else {
		identity, err = store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(ref)))
	}
	if errors.Is(err, auth.ErrIdentityNotFound) {
		return nil, fmt.Errorf("user %s not found", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", ref, err)
	}
	return identity, nil
}
