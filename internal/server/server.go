// Package server exposes the dataset store, the upload library and the
// question pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/tabletalk/internal/dataset"
	"github.com/KaramelBytes/tabletalk/internal/library"
	"github.com/KaramelBytes/tabletalk/internal/nlq"
)

// Asker answers questions about the active dataset.
type Asker interface {
	Ask(ctx context.Context, question string) (*nlq.Answer, error)
}

// Options configure the HTTP surface.
type Options struct {
	Addr           string
	MaxUploadBytes int64
	AllowedOrigins []string
	DefaultFiles   []string
	ShutdownGrace  time.Duration
}

// Server wires the HTTP handlers to the core components.
type Server struct {
	store   *dataset.Store
	lib     *library.Library
	asker   Asker
	opts    Options
	log     *zap.Logger
	handler http.Handler
}

// New builds a Server and its router.
func New(store *dataset.Store, lib *library.Library, asker Asker, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}
	s := &Server{store: store, lib: lib, asker: asker, opts: opts, log: log}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusNotFound, errorBody{Error: "Endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/files", s.handleListFiles)
		r.Post("/select-file", s.handleSelectFile)
		r.Delete("/delete-file/{filename}", s.handleDeleteFile)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/csv/groq", s.handleLegacyChat)
		r.Get("/health", s.handleHealth)
		r.Get("/categories", s.handleCategories)
	})
	return r
}

// LoadDefault loads the first configured default file present in the
// library. Failures are logged and the next candidate is tried.
func (s *Server) LoadDefault(ctx context.Context) (*dataset.Dataset, bool) {
	for _, name := range s.opts.DefaultFiles {
		path, err := s.lib.Path(name)
		if err != nil {
			continue
		}
		ds, err := s.store.LoadFile(ctx, path)
		if err != nil {
			s.log.Warn("could not load default file", zap.String("file", name), zap.Error(err))
			continue
		}
		s.record(ds)
		s.log.Info("loaded default file", zap.String("file", name))
		return ds, true
	}
	return nil, false
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler: s.handler,
		BaseContext: func(net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("starting server", zap.String("addr", ln.Addr().String()))
	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownGrace)
		defer cancel()
		s.log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func (s *Server) record(ds *dataset.Dataset) {
	if err := s.lib.Record(ds.Source, ds.Table, ds.Rows, ds.ColumnNames()); err != nil {
		s.log.Warn("could not update library manifest", zap.String("file", ds.Source), zap.Error(err))
	}
}
