// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authz

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/metrics"
)

// # Cache Tiers

const (
	// l1Size bounds the per-instance snapshot cache.
	l1Size = 10_000

	// l1TTL keeps L1 entries short-lived; the pub/sub bust handles precise
	// invalidation, the TTL is the backstop.
	l1TTL = 60 * time.Second

	// l2TTL is the shared Redis snapshot lifetime.
	l2TTL = 300 * time.Second
)

// Cache is the two-tier read-through cache in front of permission
// resolution: a per-instance expirable LRU (L1) and a shared Redis snapshot
// store (L2, feature-flagged). Invalidations delete the L2 key and broadcast
// on the bust channel; every instance's listener drops its L1 entry.
type Cache struct {
	l1        *expirable.LRU[string, *Snapshot]
	client    *redis.Client
	l2Enabled bool
	logger    *slog.Logger
}

// NewCache constructs the snapshot cache. The Redis client may be shared
// with other subsystems; pass l2Enabled=false to run L1-only.
func NewCache(client *redis.Client, l2Enabled bool, logger *slog.Logger) *Cache {
	return &Cache{
		l1:        expirable.NewLRU[string, *Snapshot](l1Size, nil, l1TTL),
		client:    client,
		l2Enabled: l2Enabled,
		logger:    logger,
	}
}

// l1Key builds the in-process cache key.
func l1Key(userID, orgID string) string {
	return userID + "|" + orgID
}

// l2Key builds authz_l2:{user}:{org}.
func l2Key(userID, orgID string) string {
	return constants.RedisPrefixAuthzL2 + userID + ":" + orgID
}

/*
Get returns the cached snapshot for (user, org) and the tier that served it.

Description: Checks L1 first, then L2. An L2 hit is promoted into L1 so the
next lookup on this instance stays local. L2 errors degrade to a miss; the
caller falls through to the store.

Parameters:
  - context: context.Context
  - userID: string
  - orgID: string

Returns:
  - *Snapshot: The cached permission set
  - Source: SourceL1 or SourceL2
  - bool: false on a full miss
*/
func (cache *Cache) Get(context context.Context, userID, orgID string) (*Snapshot, Source, bool) {
	if snapshot, ok := cache.l1.Get(l1Key(userID, orgID)); ok {
		metrics.RecordCacheHit(metrics.TierL1)
		return snapshot, SourceL1, true
	}
	metrics.RecordCacheMiss(metrics.TierL1)

	if !cache.l2Enabled || cache.client == nil {
		return nil, "", false
	}

	payload, err := cache.client.Get(context, l2Key(userID, orgID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			cache.logger.Warn("authz_l2_get_failed", slog.Any("error", err))
		}
		metrics.RecordCacheMiss(metrics.TierL2)
		return nil, "", false
	}

	var snapshot Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		cache.logger.Warn("authz_l2_decode_failed", slog.Any("error", err))
		metrics.RecordCacheMiss(metrics.TierL2)
		return nil, "", false
	}

	metrics.RecordCacheHit(metrics.TierL2)
	cache.l1.Add(l1Key(userID, orgID), &snapshot)
	return &snapshot, SourceL2, true
}

/*
Set stores a freshly resolved snapshot in both tiers.

Parameters:
  - context: context.Context
  - userID: string
  - orgID: string
  - snapshot: *Snapshot
*/
func (cache *Cache) Set(context context.Context, userID, orgID string, snapshot *Snapshot) {
	cache.l1.Add(l1Key(userID, orgID), snapshot)

	if !cache.l2Enabled || cache.client == nil {
		return
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		cache.logger.Warn("authz_l2_encode_failed", slog.Any("error", err))
		return
	}
	if err := cache.client.Set(context, l2Key(userID, orgID), payload, l2TTL).Err(); err != nil {
		cache.logger.Warn("authz_l2_set_failed", slog.Any("error", err))
	}
}

/*
InvalidateUser drops the snapshot of a (user, org) pair everywhere: local L1,
shared L2, and every other instance's L1 via the bust channel.

Parameters:
  - context: context.Context
  - userID: string
  - orgID: string
*/
func (cache *Cache) InvalidateUser(context context.Context, userID, orgID string) {
	cache.l1.Remove(l1Key(userID, orgID))
	metrics.RecordCacheInvalidation()

	if cache.client == nil {
		return
	}

	if cache.l2Enabled {
		if err := cache.client.Del(context, l2Key(userID, orgID)).Err(); err != nil {
			cache.logger.Warn("authz_l2_del_failed", slog.Any("error", err))
		}
	}

	message := userID + ":" + orgID
	if err := cache.client.Publish(context, constants.RedisChannelAuthzBust, message).Err(); err != nil {
		cache.logger.Warn("authz_bust_publish_failed", slog.Any("error", err))
	}
}

/*
StartInvalidationListener subscribes to the bust channel and drops L1
entries as messages arrive. Blocks until the context is canceled; run it in
its own goroutine from the composition root.

Parameters:
  - context: context.Context
*/
func (cache *Cache) StartInvalidationListener(context context.Context) {
	if cache.client == nil {
		return
	}

	subscription := cache.client.Subscribe(context, constants.RedisChannelAuthzBust)
	defer subscription.Close()

	channel := subscription.Channel()
	for {
		select {
		case <-context.Done():
			return
		case message, open := <-channel:
			if !open {
				return
			}
			userID, orgID, found := strings.Cut(message.Payload, ":")
			if !found {
				continue
			}
			cache.l1.Remove(l1Key(userID, orgID))
		}
	}
}
