package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoCredential is returned when a bearer-authenticated call is attempted
// without a token.
var ErrNoCredential = errors.New("no credential: log in first")

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() (string, bool)
}

// Part is one file in an extraction upload.
type Part interface {
	FileName() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

// Service is the set of remote operations the orchestration core depends on.
// It is implemented by *Client.
type Service interface {
	ExtractMergeTables(ctx context.Context, outputName string, files []Part) (ExtractResult, error)
	FetchMonthlyCount(ctx context.Context) (int, error)
	FetchHistory(ctx context.Context) ([]HistoryEntry, error)
	SaveHistory(ctx context.Context, fileName, fileURL, status string) error
	UpdateDownloadStatus(ctx context.Context, fileName string) error
	Download(ctx context.Context, fileURL string, w io.Writer) (int64, error)
}

// Ensure Client implements Service at compile time.
var _ Service = (*Client)(nil)

// Client talks to the extraction service HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	transfer  *http.Client
	tokens    TokenSource
	userAgent string
}

const (
	defaultAPIBase   = "http://127.0.0.1:8000"
	defaultUserAgent = "excelextractor/0.1"
	requestTimeout   = 10 * time.Second
)

// NewClient builds a Client for apiBase. Background calls (quota, history,
// login) use timeout; uploads and downloads carry no local timeout and are
// bounded only by ctx and the remote service.
func NewClient(apiBase string, tokens TokenSource, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(apiBase)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = requestTimeout
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		transfer:  &http.Client{},
		tokens:    tokens,
		userAgent: defaultUserAgent,
	}, nil
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Login exchanges user credentials for a bearer token.
func (c *Client) Login(ctx context.Context, userID, password string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	body, err := json.Marshal(LoginRequest{UserID: userID, Password: password})
	if err != nil {
		return "", fmt.Errorf("encode login: %w", err)
	}
	var payload LoginResponse
	req := request{
		method:      http.MethodPost,
		path:        "/login",
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}
	if err := c.do(ctx, c.http, req, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("login response carried no access token")
	}
	return payload.AccessToken, nil
}

// ExtractMergeTables uploads files in order and returns the merged spreadsheet
// location and the updated monthly count.
func (c *Client) ExtractMergeTables(ctx context.Context, outputName string, files []Part) (ExtractResult, error) {
	if c == nil {
		return ExtractResult{}, fmt.Errorf("client is nil")
	}
	body, contentType, err := buildMultipart([][2]string{{"output_file_name", outputName}}, files)
	if err != nil {
		return ExtractResult{}, err
	}
	var payload ExtractResult
	req := request{
		method:      http.MethodPost,
		path:        "/extract_merge_tables/",
		body:        body,
		contentType: contentType,
		auth:        true,
	}
	if err := c.do(ctx, c.transfer, req, &payload); err != nil {
		return ExtractResult{}, err
	}
	return payload, nil
}

// FetchMonthlyCount retrieves the server-side usage counter.
func (c *Client) FetchMonthlyCount(ctx context.Context) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("client is nil")
	}
	var payload MonthlyCountResponse
	req := request{method: http.MethodGet, path: "/get_monthly_count", auth: true}
	if err := c.do(ctx, c.http, req, &payload); err != nil {
		return 0, err
	}
	return payload.MonthlyAPICount, nil
}

// FetchHistory retrieves the download history in server order.
func (c *Client) FetchHistory(ctx context.Context) ([]HistoryEntry, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload HistoryResponse
	req := request{method: http.MethodGet, path: "/download_history/", auth: true}
	if err := c.do(ctx, c.http, req, &payload); err != nil {
		return nil, err
	}
	return payload.DownloadHistory, nil
}

// SaveHistory records a download attempt.
func (c *Client) SaveHistory(ctx context.Context, fileName, fileURL, status string) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	body, contentType, err := buildMultipart([][2]string{
		{"file_name", fileName},
		{"file_url", fileURL},
		{"status", status},
	}, nil)
	if err != nil {
		return err
	}
	req := request{
		method:      http.MethodPost,
		path:        "/save_download_history",
		body:        body,
		contentType: contentType,
		auth:        true,
	}
	return c.do(ctx, c.http, req, nil)
}

// UpdateDownloadStatus flips an entry to downloaded on the server.
func (c *Client) UpdateDownloadStatus(ctx context.Context, fileName string) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	body, contentType, err := buildMultipart([][2]string{{"file_name", fileName}}, nil)
	if err != nil {
		return err
	}
	req := request{
		method:      http.MethodPost,
		path:        "/update_download_status",
		body:        body,
		contentType: contentType,
		auth:        true,
	}
	return c.do(ctx, c.http, req, nil)
}

// Download streams the produced file at fileURL into w. Relative URLs resolve
// against the service root. The bearer token is only sent to the service's own
// host; produced files usually live on pre-signed storage URLs.
func (c *Client) Download(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("client is nil")
	}
	ref, err := url.Parse(strings.TrimSpace(fileURL))
	if err != nil || fileURL == "" {
		return 0, fmt.Errorf("invalid file url %q", fileURL)
	}
	target := c.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.decorate(req)
	if target.Host == c.baseURL.Host {
		if token, ok := c.token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return 0, newAPIError(target.Path, resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read download: %w", err)
	}
	return n, nil
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool
}

func (c *Client) do(ctx context.Context, hc *http.Client, r request, dest any) error {
	reqURL := c.baseURL.ResolveReference(&url.URL{Path: r.path})
	req, err := http.NewRequestWithContext(ctx, r.method, reqURL.String(), r.body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.decorate(req)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.auth {
		token, ok := c.token()
		if !ok {
			return ErrNoCredential
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return newAPIError(r.path, resp)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) token() (string, bool) {
	if c.tokens == nil {
		return "", false
	}
	return c.tokens.Token()
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func buildMultipart(fields [][2]string, files []Part) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, field := range fields {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	for _, file := range files {
		if err := writeFilePart(mw, file); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func writeFilePart(mw *multipart.Writer, file Part) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(file.FileName())))
	header.Set("Content-Type", file.ContentType())
	w, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create part %s: %w", file.FileName(), err)
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", file.FileName(), err)
	}
	defer func() { _ = src.Close() }()
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("copy %s: %w", file.FileName(), err)
	}
	return nil
}

func parseBaseURL(apiBase string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBase)
	if trimmed == "" {
		trimmed = defaultAPIBase
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base %q: %w", apiBase, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
