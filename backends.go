package main

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/secqr/internal/repository"
	"github.com/example/secqr/internal/scanapi"
	"github.com/example/secqr/internal/usecase"
)

// backends are the optional stores layered over the scan services. A nil
// field means the feature is off.
type backends struct {
	reputation  usecase.ReputationChecker
	marker      usecase.MaliciousMarker
	scanHistory usecase.ScanHistory
	history     *usecase.HistoryUseCase
	closers     []func() error
}

// newBackends connects redis and postgres when configured. Redis is
// optional at runtime: an unreachable server only disables the cache.
func newBackends(ctx context.Context, rt *app, client *scanapi.Client) (*backends, error) {
	b := &backends{reputation: client}

	if addr := rt.cfg.Redis.Addr; addr != "" {
		redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient, err := initRedis(redisCtx, addr)
		cancel()
		if err != nil {
			rt.logger.Warn("redis unavailable, reputation cache disabled", zap.String("addr", addr), zap.Error(err))
		} else {
			b.closers = append(b.closers, redisClient.Close)
			cached := usecase.NewCachedReputation(client, usecase.NewRedisCache(redisClient), rt.cfg.Redis.ReputationTTL, rt.logger)
			b.reputation = cached
			b.marker = cached
		}
	}

	if dsn := rt.cfg.Database.DSN; dsn != "" {
		db, err := initDatabase(ctx, dsn, rt.verbose)
		if err != nil {
			b.Close()
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			b.closers = append(b.closers, sqlDB.Close)
		}
		repo := repository.NewScanRepository(db, rt.logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.scanHistory = repo
		b.history = usecase.NewHistoryUseCase(repo, rt.logger)
	}

	return b, nil
}

// scanOptions returns the orchestrator options for the configured stores.
func (b *backends) scanOptions() []usecase.ScanOption {
	if b.scanHistory == nil {
		return nil
	}
	return []usecase.ScanOption{usecase.WithHistory(b.scanHistory)}
}

// Close releases every connection.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func initDatabase(ctx context.Context, dsn string, verbose bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if verbose {
		level = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
