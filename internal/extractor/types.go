package extractor

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Download status values stored by the service.
const (
	StatusDownloaded    = "downloaded"
	StatusNotDownloaded = "not_downloaded"
)

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// LoginResponse mirrors POST /login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// ExtractResult mirrors a successful POST /extract_merge_tables/.
type ExtractResult struct {
	MergedExcelURL  string `json:"merged_excel_url"`
	MonthlyAPICount int    `json:"monthly_api_count"`
}

// MonthlyCountResponse mirrors GET /get_monthly_count.
type MonthlyCountResponse struct {
	MonthlyAPICount int `json:"monthly_api_count"`
}

// HistoryResponse mirrors GET /download_history/.
type HistoryResponse struct {
	DownloadHistory []HistoryEntry `json:"download_history"`
}

// HistoryEntry is one server-recorded download attempt.
type HistoryEntry struct {
	FileName       string `json:"file_name"`
	FileURL        string `json:"file_url"`
	CreatedAt      string `json:"created_at"`
	DownloadStatus string `json:"download_status"`
}

// ParsedCreatedAt returns the creation timestamp as time.Time when possible.
func (e HistoryEntry) ParsedCreatedAt() time.Time {
	return parseTime(e.CreatedAt)
}

// APIError is a non-success HTTP response from the service.
type APIError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api %s returned status %d", e.Endpoint, e.StatusCode)
}

// IsAuth reports whether the service rejected the credential.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

const maxErrorBody = 64 * 1024

func newAPIError(endpoint string, resp *http.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Detail:     extractDetail(raw),
	}
}

// extractDetail pulls the human-readable message out of a {"detail": ...}
// body. Validation failures carry a list of objects with "msg" fields.
func extractDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if m := strings.TrimSpace(item.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return strings.TrimSpace(string(body.Detail))
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
