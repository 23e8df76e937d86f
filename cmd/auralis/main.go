// Command auralis runs the library ingestion pipeline as a standalone
// service: it connects to Postgres, applies migrations, exposes the admin
// Trigger API, and optionally watches the configured music folders for
// changes. Grounded on the teacher's cmd/korus/main.go wiring sequence.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"auralis/internal/adminapi"
	"auralis/internal/config"
	"auralis/internal/database"
	"auralis/internal/migrations"
	"auralis/internal/scanner"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logrus.WithField("err", err).Fatal("failed to load configuration")
	}

	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logrus.WithField("err", err).Fatal("failed to connect to database")
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.Pool)
	if err := migrator.Migrate(ctx); err != nil {
		logrus.WithField("err", err).Fatal("failed to run database migrations")
	}

	var searchIndex *scanner.SearchIndex
	if path := os.Getenv("SEARCH_INDEX_PATH"); path != "" {
		searchIndex, err = scanner.OpenSearchIndex(path)
		if err != nil {
			logrus.WithField("err", err).Fatal("failed to open search index")
		}
		defer searchIndex.Close()
	}

	s := scanner.New(db.Pool, scanner.Config{
		Parallelism:   int64(cfg.Scanner.Parallelism),
		Incremental:   cfg.Scanner.Incremental,
		CoverCacheDir: cfg.Scanner.CoverCacheDir,
	}).WithSearchIndex(searchIndex)
	defer s.Shutdown()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if cfg.Scanner.Watch {
		go func() {
			if err := s.Watch(watchCtx, cfg.Scanner.WatchDebounce); err != nil {
				logrus.WithField("err", err).Error("watch loop exited")
			}
		}()
	}

	router := adminapi.NewRouter(s, cfg.AdminToken)
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.WithField("addr", cfg.Addr).Info("auralis admin api starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("err", err).Fatal("admin api server failed")
		}
	}()

	go func() {
		if err := s.ScanAll(ctx, cfg.Scanner.Incremental); err != nil {
			logrus.WithField("err", err).Error("startup scan failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")
	cancelWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithField("err", err).Fatal("admin api server forced to shutdown")
	}

	logrus.Info("shutdown complete")
}
