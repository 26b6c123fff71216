// Package stubapi is an in-memory stand-in for the extraction service. It
// speaks the same HTTP contract as the real service so the client can be
// developed and tested without network access. The "extraction" writes one
// row per uploaded image into a merged workbook.
package stubapi

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/five82/excelextractor/internal/extractor"
	"github.com/five82/excelextractor/internal/workbook"
)

// Options configure a stub server.
type Options struct {
	// Users maps user id to password.
	Users        map[string]string
	AllowOrigins []string
	// LogWriter receives gin request logs; nil disables them.
	LogWriter io.Writer
	Now       func() time.Time
}

type historyEntry struct {
	FileName  string
	FileURL   string
	CreatedAt time.Time
	Status    string
}

type storedFile struct {
	name string
	data []byte
}

// Server holds the stub's state.
type Server struct {
	now func() time.Time

	mu      sync.Mutex
	users   map[string]string
	tokens  map[string]string
	counts  map[string]int
	history map[string][]historyEntry
	files   map[string]storedFile

	engine *gin.Engine
}

const userKey = "stubapi.user"

// New builds a stub server with its routes registered.
func New(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		now:     now,
		users:   make(map[string]string, len(opts.Users)),
		tokens:  make(map[string]string),
		counts:  make(map[string]int),
		history: make(map[string][]historyEntry),
		files:   make(map[string]storedFile),
	}
	for user, pass := range opts.Users {
		s.users[user] = pass
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.LogWriter != nil {
		r.Use(gin.LoggerWithWriter(opts.LogWriter))
	}
	if len(opts.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowOrigins,
			AllowMethods:  []string{"GET", "POST"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}
	s.registerRoutes(r)
	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// IssueToken creates a session token for user without a password check.
func (s *Server) IssueToken(user string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.tokens[token] = user
	return token
}

// RevokeToken makes token unknown, as if it had expired.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// MonthlyCount returns the count recorded for user.
func (s *Server) MonthlyCount(user string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[user]
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/login", s.login)
	r.GET("/files/:id/:name", s.serveFile)

	authed := r.Group("/", s.requireToken)
	authed.POST("/extract_merge_tables/", s.extractMergeTables)
	authed.GET("/get_monthly_count", s.monthlyCount)
	authed.GET("/download_history/", s.downloadHistory)
	authed.POST("/save_download_history", s.saveDownloadHistory)
	authed.POST("/update_download_status", s.updateDownloadStatus)
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (s *Server) login(c *gin.Context) {
	var body extractor.LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		detail(c, http.StatusUnprocessableEntity, "Invalid login payload")
		return
	}

	s.mu.Lock()
	pass, ok := s.users[body.UserID]
	s.mu.Unlock()
	if !ok || pass != body.Password {
		detail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	c.JSON(http.StatusOK, extractor.LoginResponse{
		AccessToken: s.IssueToken(body.UserID),
		TokenType:   "bearer",
	})
}

func (s *Server) requireToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		detail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	s.mu.Lock()
	user, known := s.tokens[token]
	s.mu.Unlock()
	if !known {
		detail(c, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func (s *Server) extractMergeTables(c *gin.Context) {
	user := c.GetString(userKey)
	form, err := c.MultipartForm()
	if err != nil {
		detail(c, http.StatusBadRequest, "Expected multipart form data")
		return
	}
	uploads := form.File["files"]
	if len(uploads) == 0 {
		detail(c, http.StatusBadRequest, "No files uploaded")
		return
	}

	pages := make([]workbook.Page, 0, len(uploads))
	for _, fh := range uploads {
		pages = append(pages, workbook.Page{Name: fh.Filename, Size: fh.Size})
	}

	var buf bytes.Buffer
	if err := workbook.WriteMerged(&buf, pages); err != nil {
		detail(c, http.StatusInternalServerError, "Failed to build workbook")
		return
	}

	name := strings.TrimSpace(c.PostForm("output_file_name"))
	if name == "" {
		name = "merged_output.xlsx"
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.files[id] = storedFile{name: name, data: buf.Bytes()}
	s.counts[user] += len(uploads)
	count := s.counts[user]
	s.mu.Unlock()

	c.JSON(http.StatusOK, extractor.ExtractResult{
		MergedExcelURL:  baseURL(c) + "/files/" + id + "/" + url.PathEscape(name),
		MonthlyAPICount: count,
	})
}

func (s *Server) monthlyCount(c *gin.Context) {
	c.JSON(http.StatusOK, extractor.MonthlyCountResponse{MonthlyAPICount: s.MonthlyCount(c.GetString(userKey))})
}

func (s *Server) downloadHistory(c *gin.Context) {
	user := c.GetString(userKey)

	s.mu.Lock()
	entries := s.history[user]
	out := make([]extractor.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, extractor.HistoryEntry{
			FileName:       e.FileName,
			FileURL:        e.FileURL,
			CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
			DownloadStatus: e.Status,
		})
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, extractor.HistoryResponse{DownloadHistory: out})
}

func (s *Server) saveDownloadHistory(c *gin.Context) {
	user := c.GetString(userKey)
	name := strings.TrimSpace(c.PostForm("file_name"))
	fileURL := strings.TrimSpace(c.PostForm("file_url"))
	status := c.PostForm("status")
	if name == "" || fileURL == "" {
		detail(c, http.StatusUnprocessableEntity, "file_name and file_url are required")
		return
	}
	if status != extractor.StatusDownloaded && status != extractor.StatusNotDownloaded {
		detail(c, http.StatusUnprocessableEntity, "status must be downloaded or not_downloaded")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.history[user]
	for i := range entries {
		if entries[i].FileName == name && entries[i].FileURL == fileURL {
			if status == extractor.StatusDownloaded {
				entries[i].Status = status
			}
			c.JSON(http.StatusOK, gin.H{"message": "Download history updated"})
			return
		}
	}
	entry := historyEntry{FileName: name, FileURL: fileURL, CreatedAt: s.now(), Status: status}
	s.history[user] = append([]historyEntry{entry}, entries...)
	c.JSON(http.StatusOK, gin.H{"message": "Download history saved"})
}

func (s *Server) updateDownloadStatus(c *gin.Context) {
	user := c.GetString(userKey)
	name := strings.TrimSpace(c.PostForm("file_name"))

	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.history[user] {
		if s.history[user][i].FileName == name {
			s.history[user][i].Status = extractor.StatusDownloaded
			found = true
		}
	}
	if !found {
		detail(c, http.StatusNotFound, "File not found in history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Download status updated"})
}

func (s *Server) serveFile(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.files[c.Param("id")]
	s.mu.Unlock()
	if !ok || f.name != c.Param("name") {
		detail(c, http.StatusNotFound, "File not found")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+f.name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", f.data)
}

func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
