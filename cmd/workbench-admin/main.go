package main

import (
	"context"
	"fmt"
	"os"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/auth"
	"github.com/platinummonkey/workbench/pkg/cli"
	"github.com/platinummonkey/workbench/pkg/config"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/projects"
	"github.com/platinummonkey/workbench/pkg/storage"
	"github.com/platinummonkey/workbench/pkg/users"
)

func main() {
	rootCmd := cli.NewRootCommand(open, os.Stdin, os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// open connects using the same configuration as the server. Logs go to
// stderr so that issue-token output can be captured.
func open(ctx context.Context) (*cli.Env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.WarnLevel, os.Stderr).
		WithField("service", "workbench-admin")

	db, err := storage.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	redisClient, err := storage.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, cached memberships expire on their own")
		redisClient = nil
	}

	keys, err := cfg.Auth.KeySource()
	if err != nil {
		db.Close()
		return nil, err
	}

	auditLogger := audit.NewStructuredLogger(observability.NewLogger(observability.InfoLevel, os.Stderr))
	projectService := projects.NewPostgresService(db)

	env := &cli.Env{
		Users:      users.NewPostgresStore(db),
		Members:    projectService,
		Issuer:     auth.NewIssuer(keys, auth.WithIssuerName(cfg.Auth.Issuer), auth.WithLogger(logger)),
		CacheTTL:   cfg.Cache.MembershipTTL,
		DefaultTTL: cfg.Auth.AccessTokenTTL,
		Audit:      auditLogger,
		Close: func() error {
			if redisClient != nil {
				redisClient.Close()
			}
			return db.Close()
		},
	}
	if redisClient != nil {
		env.Cache = projects.NewMembershipCache(projectService, redisClient, projects.CacheConfig{
			Size: cfg.Cache.MembershipSize,
			TTL:  cfg.Cache.MembershipTTL,
		}, nil, logger)
	}
	return env, nil
}
