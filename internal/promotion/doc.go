// Package promotion exposes the patch promotion operations used by the CLI.
//
// Every mutating operation runs inside repo.Store.WithinEvent, so the store
// decides how work on a single patch event is serialized. Failures are
// returned as errors carrying a message suitable for display; none of them
// leave partial writes behind.
package promotion
