package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/contact"
	"github.com/trezcool/darslik/core/library"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/testimonial"
	"github.com/trezcool/darslik/core/torrens"
	"github.com/trezcool/darslik/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Media      core.MediaStorage

		UserSvc        *user.Service
		CatalogSvc     *catalog.Service
		QuizSvc        *quiz.Service
		TorrensSvc     *torrens.Service
		TestimonialSvc *testimonial.Service
		LibrarySvc     *library.Service
		ContactSvc     *contact.Service

		// QuestionsImporter reads staff uploaded question sheets; nil disables the import endpoint.
		QuestionsImporter QuestionsImporter
	}

	Server struct {
		deps     ServerDeps
		tokens   *TokenIssuer
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		tokens:   NewTokenIssuer(deps.Conf),
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.Media.MaxUploadSize > 0 {
		s.app.Use(middleware.BodyLimit(strconv.FormatInt(conf.Media.MaxUploadSize>>10, 10) + "K"))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.index)
	if (conf.Media.Backend == "" || conf.Media.Backend == "local") && conf.Media.Root != "" {
		s.app.Static(strings.TrimRight(conf.Media.BaseURL, "/"), conf.Media.Root)
	}

	v1 := s.app.Group("/v1")
	jwt := s.tokens.middleware()

	registerUserAPI(v1, jwt, s.tokens, s.deps)
	registerCatalogAPI(v1, jwt, s.deps)
	registerQuizAPI(v1, jwt, s.deps)
	registerTorrensAPI(v1, jwt, s.deps)
	registerContentAPI(v1, jwt, s.deps)
	registerExportAPI(v1, jwt, s.deps)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors receives the error that stopped the server.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives SIGINT/SIGTERM, and the shutdowns requested by the error handler.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) index(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
