// Package async runs background work without letting a panic escape.
//
// Go starts a goroutine for long-lived loops such as pool statistics. Run
// wraps a single scheduled job, such as a blob sweep, and hands a panic back
// as an error.
package async
