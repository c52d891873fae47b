// Command patientcore runs the patient identity merge service over HTTP.
//
// Configuration comes from the environment:
//
//	PATIENTCORE_HTTP_ADDR        listen address (default :8080)
//	PATIENTCORE_STORAGE_DRIVER   memory | sqlite | postgres (default sqlite)
//	PATIENTCORE_SQLITE_PATH      sqlite database file
//	PATIENTCORE_POSTGRES_DSN     postgres connection string
//	PATIENTCORE_BLOB_DRIVER      memory | fs | s3 (default fs)
//	PATIENTCORE_API_TOKEN        when set, required in the X-Api-Token header
//	PATIENTCORE_LOG_LEVEL        zap level (default info)
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patientcore/internal/blob"
	"patientcore/internal/core"
	"patientcore/internal/httpapi"
)

func main() {
	zl, err := core.NewLogger()
	if err != nil {
		os.Stderr.WriteString("logger init: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()
	logger := core.NewZapLogger(zl)

	if err := run(logger); err != nil {
		logger.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(logger core.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenPersistentStore()
	if err != nil {
		return err
	}

	blobs, err := blob.Open(ctx)
	if err != nil {
		return err
	}

	metrics, err := core.NewPrometheusMetricsRecorder(nil)
	if err != nil {
		return err
	}

	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithBlobStore(blobs),
	)

	opts := []httpapi.ServerOption{httpapi.WithServerLogger(logger)}
	if token := os.Getenv("PATIENTCORE_API_TOKEN"); token != "" {
		opts = append(opts, httpapi.WithAuth(tokenAuth(token)))
	}
	api := httpapi.NewServer(svc, opts...)

	addr := os.Getenv("PATIENTCORE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening addr=%s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// tokenAuth gates every API request on a shared token. The operator name for
// audit rows comes from the X-Operator header when present.
func tokenAuth(token string) httpapi.AuthFunc {
	return func(r *http.Request) (string, bool) {
		if r.Header.Get("X-Api-Token") != token {
			return "", false
		}
		if op := r.Header.Get("X-Operator"); op != "" {
			return op, true
		}
		return "api-client", true
	}
}
