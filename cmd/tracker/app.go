package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourorg/patch-tracker/internal/config"
	"github.com/yourorg/patch-tracker/internal/db"
	"github.com/yourorg/patch-tracker/internal/lifecycle"
	"github.com/yourorg/patch-tracker/internal/logging"
	"github.com/yourorg/patch-tracker/internal/promotion"
	"github.com/yourorg/patch-tracker/internal/s3"
	"github.com/yourorg/patch-tracker/internal/synthetic"
)

// app holds the collaborators shared by every subcommand. Tests preset svc.
type app struct {
	svc     *promotion.Service
	closers []func()
}

func (a *app) setup(ctx context.Context) error {
	if a.svc != nil {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	store, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectTimeout, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		if !db.IsInsufficientPrivilege(err) {
			return fmt.Errorf("ensure schema: %w", err)
		}
		logger.Warn("ensure schema skipped due insufficient privilege", zap.Error(err))
	}

	var archive promotion.Archiver
	if cfg.ArchiveEnabled() {
		client, err := s3.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, cfg.S3Region, cfg.ReportsBucket)
		if err != nil {
			return fmt.Errorf("s3 client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			logger.Warn("reports bucket unavailable", zap.String("bucket", client.Bucket()), zap.Error(err))
		}
		archive = client
	}

	gen := synthetic.New(nil)
	if cfg.SyntheticSeed != 0 {
		gen = synthetic.NewSeeded(cfg.SyntheticSeed)
	}

	a.svc = promotion.New(store, gen, lifecycle.NewMachine(), archive, logger, promotion.Options{
		BeforeCount:   cfg.BeforeCount,
		AfterMinRatio: cfg.AfterMinRatio,
		AfterMaxRatio: cfg.AfterMaxRatio,
	})
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
