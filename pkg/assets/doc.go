// Package assets manages project documents and 3D models: metadata in
// PostgreSQL, content in a storage.BlobStore.
package assets
