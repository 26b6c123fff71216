// Package extractor provides an HTTP client for the table extraction service.
//
// # Overview
//
// The service accepts an ordered batch of images, extracts the tables found in
// each one and merges them into a single spreadsheet. It also keeps a monthly
// usage counter and a per-user download history. This package is the only
// place that knows the wire format; the rest of the module talks to the
// Service interface.
//
// # Endpoints
//
//	POST /login                    JSON {user_id, password} -> {access_token}
//	POST /extract_merge_tables/    multipart output_file_name + files...
//	GET  /get_monthly_count        -> {monthly_api_count}
//	GET  /download_history/        -> {download_history: [...]}
//	POST /save_download_history    multipart file_name, file_url, status
//	POST /update_download_status   multipart file_name
//
// Every call except login carries the bearer token from the TokenSource. A
// missing token fails locally with ErrNoCredential before any request is made.
//
// # Error Handling
//
// Non-success responses become *APIError. The Detail field carries the
// server's "detail" text when present. IsAuth reports 401/403, which callers
// treat as an expired session:
//
//	var apiErr *extractor.APIError
//	if errors.As(err, &apiErr) && apiErr.IsAuth() {
//		// ask the operator to log in again
//	}
//
// Transport failures are wrapped with "execute request" and decode failures
// with "decode response".
//
// # Timeouts
//
// Background calls (login, quota, history) use the timeout passed to
// NewClient. Uploads and downloads have no local timeout; they end when the
// service answers, the connection fails or ctx is cancelled.
package extractor
