// Package config loads workbench configuration.
//
// Values come from three layers, later layers winning: built-in defaults, an
// optional YAML file named by WORKBENCH_CONFIG_FILE, and WORKBENCH_*
// environment variables.
//
// Server settings:
//
//	WORKBENCH_HOST="0.0.0.0"
//	WORKBENCH_PORT="8080"
//	WORKBENCH_HEALTH_PORT="9090"
//
// Credentials:
//
//	WORKBENCH_SECRET_KEY="<at least 32 bytes>"
//	WORKBENCH_PREVIOUS_SECRET_KEYS="old1,old2"  # still accepted for verification
//	WORKBENCH_ACCESS_TOKEN_TTL="24h"
//	WORKBENCH_REMEMBER_ME_TTL="720h"
//	WORKBENCH_COOKIE_SECURE="true"
//
// Storage:
//
//	WORKBENCH_DATABASE_URL="postgres://localhost/workbench?sslmode=disable"
//	WORKBENCH_STORAGE_TYPE="filesystem"  # filesystem or s3
//	WORKBENCH_FILESYSTEM_ROOT="./data/blobs"
//	WORKBENCH_S3_BUCKET="workbench"
//	WORKBENCH_REDIS_URL="redis://localhost:6379"  # optional
//
// The same keys in YAML:
//
//	auth:
//	  secret: "..."
//	  access_token_ttl: 24h
//	storage:
//	  type: s3
//	  s3_bucket: workbench
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
