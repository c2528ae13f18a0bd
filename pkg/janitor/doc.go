// Package janitor removes stored documents and 3D models that no database row
// points at any more.
//
// Deleting a document or model removes its row first and its blob second, and
// an upload writes the blob before the row. Either path can leave a blob
// behind when the process dies in between. The sweeper lists the blob prefixes,
// loads the referenced keys from the database and deletes what is left over.
//
//	s := janitor.NewSweeper(assetService, blobStore, janitor.Config{
//		GracePeriod: 24 * time.Hour,
//		Concurrency: 8,
//	}, logger, auditLogger)
//	report, err := s.Sweep(ctx)
//
// The first-seen times behind GracePeriod live in memory, so a fresh process
// starts every orphan's clock over.
package janitor
