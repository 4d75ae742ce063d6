/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/julienschmidt/httprouter"
	"github.com/klauspost/compress/zstd"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/golmi/discover"
	"github.com/Seednode/golmi/store"
)

const (
	logDate    string        = `2006-01-02T15:04:05.000-07:00`
	timeout    time.Duration = 10 * time.Second
	maxLogSize int64         = 64 << 20
	qrSize     int           = 320
)

var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxLogSize)))
	if err != nil {
		panic("golmi: zstd decoder initialization failed: " + err.Error())
	}
}

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func writeText(cfg *Config, w http.ResponseWriter, status int, body string) (int, error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	return io.WriteString(w, body)
}

func serveSaveLog(cfg *Config, st store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLogSize))
		if err != nil {
			_, _ = writeText(cfg, w, http.StatusRequestEntityTooLarge, "log too large\n")

			return
		}

		if strings.EqualFold(r.Header.Get("Content-Encoding"), "zstd") {
			body, err = zstdDecoder.DecodeAll(body, nil)
			if err != nil {
				_, _ = writeText(cfg, w, http.StatusBadRequest, "invalid zstd body\n")

				return
			}
		}

		if len(body) == 0 || !isJSON(r) || !json.Valid(body) {
			_, _ = writeText(cfg, w, http.StatusBadRequest, "expected a json body\n")

			return
		}

		var indented bytes.Buffer
		if err := json.Indent(&indented, body, "", "  "); err != nil {
			_, _ = writeText(cfg, w, http.StatusBadRequest, "expected a json body\n")

			return
		}

		name, err := st.Save(r.Context(), time.Now(), indented.Bytes())
		if err != nil {
			errs <- fmt.Errorf("save log: %w", err)

			_, _ = writeText(cfg, w, http.StatusInternalServerError, "could not save log\n")

			return
		}

		if _, err := writeText(cfg, w, http.StatusOK, "0"); err != nil {
			errs <- err

			return
		}

		logf(cfg, "SAVE: Log %s (%s) from %s in %s",
			name,
			humanize.Bytes(uint64(indented.Len())),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func validName(name string) bool {
	return name != "" && name == filepath.Base(name) && name != "." && name != ".."
}

func serveTasks(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		taskname := p.ByName("taskname")
		if !validName(taskname) {
			http.NotFound(w, r)

			return
		}

		data, err := os.ReadFile(filepath.Join(cfg.tasksDir, taskname+".json"))
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Tasks %s (%s) to %s in %s",
			taskname,
			humanize.Bytes(uint64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveLogList(cfg *Config, st store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		names, err := st.List(r.Context())
		if err != nil {
			errs <- fmt.Errorf("list logs: %w", err)

			_, _ = writeText(cfg, w, http.StatusInternalServerError, "could not list logs\n")

			return
		}
		if names == nil {
			names = []string{}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(names); err != nil {
			errs <- err
		}
	}
}

func serveLog(cfg *Config, st store.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		body, err := st.Load(r.Context(), p.ByName("name"))
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.NotFound(w, r)

			return
		case err != nil:
			errs <- fmt.Errorf("load log: %w", err)

			_, _ = writeText(cfg, w, http.StatusInternalServerError, "could not load log\n")

			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		securityHeaders(cfg, w)

		if _, err := w.Write(body); err != nil {
			errs <- err
		}
	}
}

// serveQR answers with a PNG QR code of the sink's base URL, so a browser
// or phone can find it.
func serveQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		png, err := qrcode.Encode(scheme+"://"+r.Host+cfg.prefix+"/", qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if _, err := writeText(cfg, w, http.StatusOK, "Ok\n"); err != nil {
			errs <- err
		}
	}
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		written, err := writeText(cfg, w, http.StatusOK, "golmi v"+releaseVersion+"\n")
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanize.Bytes(uint64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func newRouter(cfg *Config, st store.Store, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = serverError(cfg)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.POST(cfg.prefix+"/save_log", serveSaveLog(cfg, st, errs))

	mux.GET(cfg.prefix+"/get_tasks/:taskname", serveTasks(cfg, errs))

	mux.GET(cfg.prefix+"/logs", serveLogList(cfg, st, errs))

	mux.GET(cfg.prefix+"/logs/:name", serveLog(cfg, st, errs))

	mux.GET(cfg.prefix+"/qr", serveQR(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return mux
}

func ServeSink(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: golmi v%s", releaseVersion)

	st, err := store.Open(ctx, store.Options{
		Kind:        cfg.store,
		DataDir:     cfg.dataDir,
		BoltPath:    cfg.boltPath,
		DatabaseURL: cfg.databaseURL,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	errs := make(chan error, 64)
	go drainErrors(errs)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, st, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	if cfg.announce {
		host, _ := os.Hostname()
		a, err := discover.Announce("golmi-"+host, discover.SinkService, cfg.port, cfg.prefix+"/")
		if err != nil {
			return err
		}
		defer a.Shutdown()

		logf(cfg, "SERVE: Announced %s on port %d", discover.SinkService, cfg.port)
	}

	go func() {
		var err error
		logf(cfg, "SERVE: Listening on %s://%s%s/ (store: %s)", cfg.scheme(), srv.Addr, cfg.prefix, cfg.store)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorf("%v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
