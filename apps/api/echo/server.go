package echoapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
)

type (
	// ArtifactStore opens rendered artifacts by reference.
	ArtifactStore interface {
		Open(ref string) (io.ReadCloser, error)
	}

	// RequestObserver is told about every served request.
	RequestObserver interface {
		ObserveRequest(route, method string, code int, took time.Duration)
	}

	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Reports    *report.Service
		Resolver   report.ScopeResolver
		Engine     *analytics.Engine
		Scorer     *compliance.Scorer
		Store      metric.Store
		Artifacts  ArtifactStore
		Metrics    RequestObserver // optional
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server struct {
		*http.Server
		app      *echo.Echo
		deps     *ServerDeps
		errors   chan error
		shutdown chan os.Signal
	}
)

// NewServer builds the API server. shutdown receives the OS signals that should stop it.
func NewServer(addr string, shutdown chan os.Signal, deps *ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		deps:     deps,
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.Server = &http.Server{
		Addr:         addr,
		Handler:      s.app,
		ReadTimeout:  deps.Conf.Server.ReadTimeout,
		WriteTimeout: deps.Conf.Server.WriteTimeout,
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.deps.Metrics != nil {
		s.app.Use(metricsMiddleware(s.deps.Metrics))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1", middleware.JWTWithConfig(jwtConfig(conf)), principalMiddleware)
	registerReportAPI(v1, s.deps)
	registerAnalyticsAPI(v1, s.deps)
}

// Start listens until the server is shut down; a listening failure is sent to Errors.
func (s *Server) Start() {
	s.deps.Logger.Info(fmt.Sprintf("API listening on %s", s.Addr))
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the owner of the server to shut it down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, fmt.Sprintf("Welcome to %s API!", s.deps.Conf.AppName))
}
