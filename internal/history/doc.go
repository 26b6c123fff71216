// Package history keeps a client-side cache of the server's download history.
//
// # Reconciliation
//
// The server is the source of truth. Every write (RecordAttempt,
// MarkDownloaded) is followed by an unconditional Refresh, and Refresh replaces
// the cache wholesale. The cache is never trusted as a local echo of a write.
//
//	RecordAttempt ──> POST /save_download_history ──┐
//	MarkDownloaded ─> POST /update_download_status ─┤
//	                                                 └──> Refresh (GET /download_history/)
//
// MarkDownloaded flips the cached entry before posting so the view updates at
// once; the following refresh settles whatever the server actually stored.
//
// # Status
//
// An entry only moves from not_downloaded to downloaded. A not_downloaded
// record for an entry the cache already holds as downloaded is refused with
// ErrStatusRegression, and MarkDownloaded is a no-op for entries that are
// already downloaded.
//
// # Failures
//
// History is best-effort. A failed refresh keeps the previous entries, records
// LastError and bumps ConsecutiveFailures (IsOffline after two). Callers log
// these errors and carry on.
package history
