package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ValentinKolb/hkv/rpc/common"
	"github.com/ValentinKolb/hkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	// RPCPath is the path requests are posted to
	RPCPath = "/rpc"
	// MetricsPath serves the Prometheus metrics if a metrics writer is configured
	MetricsPath = "/metrics"

	maxBodyBytes = 64 << 20
)

// NewHttpServerTransport creates a server transport. If metrics is not nil
// it is served under MetricsPath.
func NewHttpServerTransport(metrics func(w io.Writer)) transport.IRPCServerTransport {
	return &httpServerTransport{metrics: metrics}
}

type httpServerTransport struct {
	handler transport.ServerHandleFunc
	metrics func(w io.Writer)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(ctx context.Context, config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("http transport: no handler registered")
	}

	srv := &http.Server{
		Addr:              config.Endpoint,
		Handler:           NewHandler(t.handler, t.metrics, config.LogLevel == "debug"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if config.TimeoutSecond > 0 {
		srv.ReadTimeout = time.Duration(config.TimeoutSecond) * time.Second
	}

	// Shut down when the context ends
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			Logger.Warningf("HTTP server shutdown: %v", err)
		}
	}()

	Logger.Infof("Starting HTTP server on %s", config.Endpoint)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}

// NewHandler returns the http.Handler of the transport. It is exported to
// mount the RPC endpoint in other servers (or httptest).
func NewHandler(handle transport.ServerHandleFunc, metrics func(w io.Writer), debug bool) http.Handler {
	mux := http.NewServeMux()

	rpc := func(w http.ResponseWriter, r *http.Request) {
		handleRequest(handle, w, r)
	}
	if debug {
		mux.HandleFunc("POST "+RPCPath, loggerMiddleware(rpc))
	} else {
		mux.HandleFunc("POST "+RPCPath, rpc)
	}

	if metrics != nil {
		mux.HandleFunc("GET "+MetricsPath, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			metrics(w)
		})
	}
	return mux
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleRequest handles incoming HTTP requests and writes the response to the writer
func handleRequest(handle transport.ServerHandleFunc, w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	// Read request body
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	// Call the handler
	resp := handle(r.Context(), body)

	// Write response
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		Logger.Errorf("Failed to write response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
