package cache

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/infrastructure/config"
)

// OrderLockerFactory creates order lockers based on configuration
type OrderLockerFactory struct {
	redisConfig           config.RedisConfig
	lockTTL               time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// OrderLockerFactoryOption is a functional option for configuring the factory
type OrderLockerFactoryOption func(*OrderLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) OrderLockerFactoryOption {
	return func(f *OrderLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory locker
// when Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) OrderLockerFactoryOption {
	return func(f *OrderLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithLockTTL overrides the Redis lock TTL
func WithLockTTL(ttl time.Duration) OrderLockerFactoryOption {
	return func(f *OrderLockerFactory) {
		f.lockTTL = ttl
	}
}

// NewOrderLockerFactory creates a new factory
func NewOrderLockerFactory(cfg config.RedisConfig, opts ...OrderLockerFactoryOption) *OrderLockerFactory {
	f := &OrderLockerFactory{
		redisConfig:           cfg,
		lockTTL:               30 * time.Second,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLocker creates a Redis-based order locker
func (f *OrderLockerFactory) CreateRedisLocker() (shared.OrderLocker, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	locker, err := NewRedisOrderLocker(redisCfg, f.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis order locker: %w", err)
	}

	return locker, nil
}

// CreateInMemoryLocker creates an in-memory order locker.
// WARNING: in-memory lockers do not share state across process instances,
// which can let two instances apply status changes to the same order
// concurrently in distributed deployments.
func (f *OrderLockerFactory) CreateInMemoryLocker() shared.OrderLocker {
	return NewInMemoryOrderLocker()
}

// CreateLocker creates an order locker based on whether Redis is available.
// It tries Redis first and falls back to in-memory if Redis is unreachable
// and fallback is allowed.
func (f *OrderLockerFactory) CreateLocker() (shared.OrderLocker, error) {
	locker, err := f.CreateRedisLocker()
	if err == nil {
		f.logger.Info("using Redis order locker")
		return locker, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for order locking but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory order locker. "+
		"This may allow concurrent status application in distributed deployments.",
		zap.Error(err),
	)
	return f.CreateInMemoryLocker(), nil
}
