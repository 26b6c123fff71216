package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/five82/excelextractor/internal/config"
	"github.com/five82/excelextractor/internal/stubapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "127.0.0.1:8000", "listen address")
	users := flag.String("users", "", "comma separated user:password pairs (defaults to $STUB_USERS)")
	origins := flag.String("cors", "", "comma separated allowed origins (optional)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "extractor-stub: %v\n", err)
		return 1
	}
	if *users == "" {
		*users = os.Getenv("STUB_USERS")
	}
	accounts, err := parseUsers(*users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "extractor-stub: %v\n", err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := stubapi.New(stubapi.Options{
		Users:        accounts,
		AllowOrigins: splitList(*origins),
		LogWriter:    os.Stderr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("extractor stub listening", "addr", *addr, "users", len(accounts))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "extractor-stub: %v\n", err)
		return 1
	}
	return 0
}

func parseUsers(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		user, pass, ok := strings.Cut(pair, ":")
		if !ok || user == "" || pass == "" {
			return nil, fmt.Errorf("invalid user entry %q (want user:password)", pair)
		}
		out[user] = pass
	}
	if len(out) == 0 {
		out["demo"] = "demo"
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
