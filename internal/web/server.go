package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imgprompt/imgprompt/internal/copygate"
	"github.com/imgprompt/imgprompt/internal/history"
	"github.com/imgprompt/imgprompt/internal/images"
	"github.com/imgprompt/imgprompt/internal/logging"
)

// Host is the only interface the server binds to.
const Host = "127.0.0.1"

// portScanRange is how many ports above the preferred one are tried.
const portScanRange = 200

// maxBodyBytes caps request bodies: one image plus form overhead.
const maxBodyBytes = images.MaxUploadBytes + 200_000

// Options wires the server to its collaborators.
type Options struct {
	Store     *history.Store
	Gate      *copygate.Gate
	Clipboard Clipboard
	Logger    *slog.Logger
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// Listen binds the loopback interface on preferred, or on the first free
// port among the next 200. Zero picks any free port.
func Listen(preferred int) (net.Listener, int, error) {
	if preferred == 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(Host, "0"))
		if err != nil {
			return nil, 0, err
		}
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}

	var lastErr error
	for offset := 0; offset < portScanRange; offset++ {
		port := preferred + offset
		if port <= 0 || port > 65535 {
			continue
		}
		ln, err := net.Listen("tcp", net.JoinHostPort(Host, fmt.Sprint(port)))
		if err != nil {
			lastErr = err
			continue
		}
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}
	return nil, 0, fmt.Errorf("no free port in %d..%d: %w", preferred, preferred+portScanRange-1, lastErr)
}

// BaseURL returns the origin pages use to reach the server.
func BaseURL(port int) string {
	return fmt.Sprintf("http://%s:%d", Host, port)
}

// NewServer creates the HTTP server for history pages on port.
func NewServer(opts Options, port int) *http.Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	h := &Handlers{
		store:     opts.Store,
		gate:      opts.Gate,
		clipboard: opts.Clipboard,
		logger:    logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", h.HandlePing)
	mux.HandleFunc("GET /api/pages", h.HandlePages)
	mux.HandleFunc("GET /api/pages/{page}/entries", h.HandleEntries)
	mux.HandleFunc("GET /api/pages/{page}/entries/{id}/prompt", h.HandlePrompt)
	mux.HandleFunc("POST /api/pages/{page}/entries/{id}/overwrite", h.HandleOverwrite)
	mux.HandleFunc("POST /api/pages/{page}/entries/{id}/delete", h.HandleDelete)
	mux.HandleFunc("POST /api/pages/{page}/entries/{id}/image", h.HandleUploadImage)
	mux.HandleFunc("GET /api/pages/{page}/entries/{id}/image", h.HandleImage)
	mux.HandleFunc("POST /app/copy", h.HandleCopy)
	mux.HandleFunc("GET /app/history-revision", h.HandleRevision)

	if opts.MCP != nil {
		mux.Handle("/mcp", opts.MCP)
	}

	handler := requestLogger(logger, cors(port, limitBody(securityHeaders(mux))))

	return &http.Server{
		Addr:              net.JoinHostPort(Host, fmt.Sprint(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// limitBody caps every request body at maxBodyBytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves on ln until ctx is done or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("history server listening", "url", "http://"+ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("history server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
