// Package cache provides a Redis read-through layer for per-company
// reference data. Only slow-changing configuration is cached; documents
// and stock always hit the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ahtrading/posledger/internal/application/processor"
	"github.com/ahtrading/posledger/internal/domain/ledger"
)

// ReferenceCache wraps a ReferenceStore, caching account defaults,
// payment-method mappings, and company policies. Cache failures degrade
// to direct reads. Customer credit is never cached; stale configuration
// keys simply age out at the TTL.
type ReferenceCache struct {
	processor.ReferenceStore

	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewReferenceCache(store processor.ReferenceStore, client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReferenceCache {
	return &ReferenceCache{
		ReferenceStore: store,
		client:         client,
		ttl:            ttl,
		logger:         logger,
	}
}

func (c *ReferenceCache) AccountDefaults(ctx context.Context, companyID uuid.UUID) (map[ledger.AccountRole]uuid.UUID, error) {
	key := fmt.Sprintf("posledger:ref:%s:account_defaults", companyID)
	var cached map[ledger.AccountRole]uuid.UUID
	if c.get(ctx, key, &cached) {
		return cached, nil
	}
	fresh, err := c.ReferenceStore.AccountDefaults(ctx, companyID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, fresh)
	return fresh, nil
}

func (c *ReferenceCache) PaymentMethodAccounts(ctx context.Context, companyID uuid.UUID) (map[string]uuid.UUID, error) {
	key := fmt.Sprintf("posledger:ref:%s:payment_methods", companyID)
	var cached map[string]uuid.UUID
	if c.get(ctx, key, &cached) {
		return cached, nil
	}
	fresh, err := c.ReferenceStore.PaymentMethodAccounts(ctx, companyID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, fresh)
	return fresh, nil
}

type loyaltyPolicyEntry struct {
	PointsPerUSD decimal.Decimal `json:"points_per_usd"`
	PointsPerLBP decimal.Decimal `json:"points_per_lbp"`
}

func (c *ReferenceCache) LoyaltyPolicy(ctx context.Context, companyID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	key := fmt.Sprintf("posledger:ref:%s:loyalty", companyID)
	var cached loyaltyPolicyEntry
	if c.get(ctx, key, &cached) {
		return cached.PointsPerUSD, cached.PointsPerLBP, nil
	}
	perUSD, perLBP, err := c.ReferenceStore.LoyaltyPolicy(ctx, companyID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	c.set(ctx, key, loyaltyPolicyEntry{PointsPerUSD: perUSD, PointsPerLBP: perLBP})
	return perUSD, perLBP, nil
}

func (c *ReferenceCache) InventoryPolicy(ctx context.Context, companyID uuid.UUID) (processor.InventoryPolicy, error) {
	key := fmt.Sprintf("posledger:ref:%s:inventory_policy", companyID)
	var cached processor.InventoryPolicy
	if c.get(ctx, key, &cached) {
		return cached, nil
	}
	fresh, err := c.ReferenceStore.InventoryPolicy(ctx, companyID)
	if err != nil {
		return processor.InventoryPolicy{}, err
	}
	c.set(ctx, key, fresh)
	return fresh, nil
}

func (c *ReferenceCache) get(ctx context.Context, key string, target any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("reference cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		c.logger.Warn("reference cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *ReferenceCache) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("reference cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("reference cache write failed", zap.String("key", key), zap.Error(err))
	}
}
