// Package projects manages projects, their memberships, tasks and status
// updates.
//
// PostgresService is the source of truth and implements both
// auth.ProjectLookup and auth.MembershipStore. MembershipCache wraps it for
// the hot path of the owner check:
//
//	service := projects.NewPostgresService(db)
//	cache := projects.NewMembershipCache(service, redisClient, projects.DefaultCacheConfig(), metrics, logger)
//	checker := auth.NewAccessChecker(service, cache, metrics)
//
// Callers that change memberships must invalidate the cache.
package projects
