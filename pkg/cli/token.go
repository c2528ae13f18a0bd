package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/platinummonkey/workbench/pkg/audit"
)

func (a *app) newIssueTokenCommand() *Command {
	cmd := &Command{
		Name:        "issue-token",
		Description: "Print a credential for a user",
		Flags:       newFlagSet("issue-token", a.out),
	}

	user := cmd.Flags.String("user", "", "User id or email")
	ttl := cmd.Flags.Duration("ttl", 0, "Credential lifetime; defaults to the configured access token TTL")
	asJSON := cmd.Flags.Bool("json", false, "Print the full credential as JSON")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *user == "" {
			return fmt.Errorf("user is required")
		}
		if *ttl < 0 {
			return fmt.Errorf("ttl must be positive")
		}

		return a.with(func(ctx context.Context, env *Env) error {
			if env.Issuer == nil {
				return fmt.Errorf("no signing secret configured")
			}
			identity, err := resolveUser(ctx, env.Users, *user)
			if err != nil {
				return err
			}
			if !identity.IsActive {
				return fmt.Errorf("user %d is inactive", identity.ID)
			}

			lifetime := *ttl
			if lifetime == 0 {
				lifetime = env.DefaultTTL
			}
			cred, err := env.Issuer.IssueFor(identity, lifetime)
			if err != nil {
				return fmt.Errorf("failed to issue credential: %w", err)
			}
			audit.Record(ctx, env.Audit, audit.NewEvent(nil, audit.EventTypeAuthTokenIssue, audit.EventStatusSuccess).
				WithUser(identity.ID, identity.Email).
				WithMessage("issued from the admin command line").
				WithMetadata("expires_at", cred.ExpiresAt))

			if *asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(cred)
			}
			fmt.Fprintln(a.out, cred.Token)
			return nil
		})
	}
	return cmd
}
