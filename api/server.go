package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/modsearch/config"
	"github.com/meghashyamc/modsearch/db/kvdb"
	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/meghashyamc/modsearch/logger"
	"github.com/meghashyamc/modsearch/services/index"
	"github.com/meghashyamc/modsearch/services/mods"
	"github.com/meghashyamc/modsearch/validation"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	cfg          *config.Config
	router       *gin.Engine
	httpServer   *http.Server
	kvdb         *kvdb.BoltDB
	searchdb     searchdb.DB
	primarydb    *primarydb.Store
	indexService *index.Service
	modsService  *mods.Service
	scheduler    *index.Scheduler
	validator    *validation.Validator
	logger       logger.Logger
}

// Run serves the API until the process is interrupted.
func Run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := &server{
		cfg:    cfg,
		logger: logger.NewWithLevel(cfg.GetLogLevel()),
	}
	if err := s.setupDependencies(ctx); err != nil {
		s.closeStores()
		return err
	}
	if err := s.setupScheduler(ctx); err != nil {
		s.closeStores()
		return err
	}
	s.setupRouter()

	serveErr := s.setupHTTPServer()
	return s.setupGracefulShutdown(ctx, serveErr)
}

func (s *server) setupDependencies(ctx context.Context) error {
	var err error
	s.primarydb, err = primarydb.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating primaryDB", "err", err.Error())
		return err
	}
	s.kvdb, err = kvdb.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating kvDB", "err", err.Error())
		return err
	}
	s.searchdb, err = searchdb.New(ctx, s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating searchDB", "err", err.Error())
		return err
	}
	s.validator, err = validation.New(s.logger)
	if err != nil {
		s.logger.Error("error creating validator", "err", err.Error())
		return err
	}

	s.indexService = index.New(ctx, s.logger, s.searchdb, s.kvdb, s.primarydb, index.Options{
		SiteURL:          s.cfg.GetSiteURL(),
		HostTag:          s.cfg.GetHostTag(),
		BatchSize:        s.cfg.GetBatchSize(),
		RequeueOnFailure: s.cfg.GetRequeueOnFailure(),
	})
	s.modsService = mods.New(s.logger, s.primarydb, s.indexService)

	return nil

}

// setupScheduler restores the queue left by the previous process before the
// first flush can run.
func (s *server) setupScheduler(ctx context.Context) error {
	if _, err := s.indexService.Restore(); err != nil {
		s.logger.Warn("could not restore pending documents", "err", err.Error())
	}

	s.scheduler = index.NewScheduler(s.logger)
	if err := s.indexService.ScheduleJobs(s.scheduler, s.cfg.GetFlushInterval(), s.cfg.GetReindexInterval()); err != nil {
		s.logger.Error("error scheduling index jobs", "err", err.Error())
		return err
	}
	s.scheduler.Start(ctx)

	return nil
}

func (s *server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := newRouter()

	router.Use(loggingMiddleware(s.logger))

	setupRoutes(router, s.logger, s.searchdb, s.indexService, s.modsService, s.validator)

	s.router = router
}

func (s *server) setupHTTPServer() <-chan error {

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.GetPort()),
		Handler: s.router.Handler(),
	}
	s.httpServer = httpServer

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	return serveErr
}

func (s *server) setupGracefulShutdown(ctx context.Context, serveErr <-chan error) error {

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			s.logger.Error("http server failed", "err", err.Error())
			runErr = fmt.Errorf("listen: %w", err)
		}
	}

	s.logger.Info("starting to shut down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error shutting down http server", "err", err.Error())
	}

	// In-flight index runs finish before the stores close.
	s.scheduler.Stop()
	s.indexService.Wait()
	if _, err := s.indexService.Persist(); err != nil {
		s.logger.Error("could not persist pending documents", "err", err.Error())
	}

	s.closeStores()
	s.logger.Info("shut down http server successfully")

	return runErr
}

func (s *server) closeStores() {
	if s.searchdb != nil {
		s.searchdb.Close()
	}
	if s.kvdb != nil {
		s.kvdb.Close()
	}
	if s.primarydb != nil {
		s.primarydb.Close()
	}
}
