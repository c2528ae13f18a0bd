// Package storage opens the backing services used by workbench: the Postgres
// pool, the optional Redis client, and the blob store that holds uploaded
// documents and 3D models.
//
// # Blob stores
//
// BlobStore is implemented by FilesystemStore (development, single node) and
// S3Store (AWS S3 or MinIO). NewBlobStore picks one from Config.Type:
//
//	blobs, err := storage.NewBlobStore(ctx, storage.Config{
//		Type:           "s3",
//		S3Endpoint:     "http://localhost:9000",
//		S3Bucket:       "workbench",
//		S3UsePathStyle: true,
//	}, metrics)
//
// Keys are generated with NewKey under PrefixDocuments or PrefixModels. Both
// backends reject keys containing "." or ".." segments.
//
// # Database
//
// OpenDatabase configures the connection pool and pings before returning.
// Migrate creates the tables the stores expect when they are missing; it
// never alters existing tables, so databases carrying the legacy role or
// is_admin columns keep working unchanged.
package storage
