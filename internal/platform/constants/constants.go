// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Outbound Deadlines: Per-dependency call budgets (Postgres, Redis, email).
  - Rate Limiting: Burst capacities and window sizes.
  - Security: JWT issuer and header names.
  - Redis Taxonomy: Every volatile key family with its fixed prefix.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "gatekeep-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Outbound Call Deadlines

const (
	// DatabaseTimeout is the per-call budget for Postgres operations.
	DatabaseTimeout = 2 * time.Second

	// CacheTimeout is the per-call budget for Redis operations.
	CacheTimeout = 200 * time.Millisecond

	// EmailTimeout is the per-call budget for the EmailSender collaborator.
	EmailTimeout = 5 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP by the
	// in-memory first gate.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute

	// RateLimitWindow is the width of the Redis per-route counter window.
	RateLimitWindow = 1 * time.Minute
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in JWTs.
	AuthIssuer = "gatekeep"

	// HeaderTraceID is the correlation header generated or propagated by middleware.
	HeaderTraceID = "X-Trace-ID"

	// HeaderXRealIP and HeaderXForwardedFor carry the client IP across proxies.
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderOrigin is the CORS origin header.
	HeaderOrigin = "Origin"
)

// # Redis Prefixes (Cache Taxonomy)
//
// Every volatile key family lives under a fixed prefix. TTLs are attached at
// write time by the owning repository.

const (
	// RedisPrefixRefreshToken tracks refresh-token metadata: rt:{jti}.
	RedisPrefixRefreshToken = "rt:"

	// RedisPrefixTwoFactorCode stores one-time codes: 2fa:{user}:{purpose}.
	RedisPrefixTwoFactorCode = "2fa:"

	// RedisPrefixTwoFactorSession holds the password-accepted login state: 2fa_session:{token}.
	RedisPrefixTwoFactorSession = "2fa_session:"

	// RedisPrefixAttempts counts consecutive failures: attempts:{user}:{purpose}.
	RedisPrefixAttempts = "attempts:"

	// RedisPrefixRateLimit counts requests per window: rl:{route}:{principal}.
	RedisPrefixRateLimit = "rl:"

	// RedisPrefixAuthzL2 caches resolved permission snapshots: authz_l2:{user}:{org}.
	RedisPrefixAuthzL2 = "authz_l2:"

	// RedisChannelAuthzBust is the pub/sub channel carrying L1 invalidation messages.
	RedisChannelAuthzBust = "authz:bust"

	// RedisPrefixResetToken stores password reset tokens: auth:reset_token:{token}.
	RedisPrefixResetToken = "auth:reset_token:"

	// RedisPrefixVerifyToken stores email verification tokens: auth:verify_token:{token}.
	RedisPrefixVerifyToken = "auth:verify_token:"
)

// # Database Schemas

const (
	SchemaUsers = "users"
	SchemaAuthz = "authz"
	SchemaAudit = "audit"
)
