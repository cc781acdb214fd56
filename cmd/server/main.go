package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scd-extractor/internal/config"
	"scd-extractor/internal/extractor"
	"scd-extractor/internal/ioformats"
	"scd-extractor/internal/models"
	"scd-extractor/pkg/logger"
)

const maxUpload = 64 << 20

func main() {
	l := logger.New()
	defer l.Sync()

	cfg, err := config.Load("")
	if err != nil {
		l.Errorf("config: %v", err)
		os.Exit(1)
	}
	pipe, err := extractor.NewPipeline(cfg, l)
	if err != nil {
		l.Errorf("pipeline: %v", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      logRequest(l, newMux(pipe, cfg, l)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		l.Infof("server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	l.Infof("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	l.Infof("bye")
}

func newMux(pipe *extractor.Pipeline, cfg config.Config, l *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// POST /extract (multipart file=...) -> Result JSON, or the table with ?format=table
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart parse error"})
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file part 'file' required"})
			return
		}
		defer f.Close()

		res, err := pipe.RunReader(r.Context(), f, hdr.Size, hdr.Filename)
		if err != nil {
			l.Errorf("extract %s: %v", hdr.Filename, err)
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}

		if r.URL.Query().Get("format") == "table" {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_ = ioformats.WriteTable(w, cfg.Delimiter, res.Records)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	// POST /extract/batch (multipart, several file=... parts) -> NDJSON, one line per drawing
	mux.HandleFunc("/extract/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 4*maxUpload)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart parse error"})
			return
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file part 'file' required"})
			return
		}

		type out struct {
			Name   string         `json:"name"`
			Result *models.Result `json:"result,omitempty"`
			Error  string         `json:"error,omitempty"`
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, hdr := range files {
			res, err := func() (models.Result, error) {
				f, err := hdr.Open()
				if err != nil {
					return models.Result{}, err
				}
				defer f.Close()
				return pipe.RunReader(r.Context(), f, hdr.Size, hdr.Filename)
			}()
			if err != nil {
				_ = enc.Encode(out{Name: hdr.Filename, Error: err.Error()})
				continue
			}
			_ = enc.Encode(out{Name: hdr.Filename, Result: &res})
		}
	})

	return mux
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, extractor.ErrMalformedArchive), errors.Is(err, extractor.ErrInconsistentArchive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func logRequest(l *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		l.Infof("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
