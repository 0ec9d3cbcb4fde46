// Copyright (c) 2026 Gatekeep. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/taibuivan/gatekeep/internal/platform/apperr"
	"github.com/taibuivan/gatekeep/internal/platform/constants"
	"github.com/taibuivan/gatekeep/internal/platform/ctxutil"
	"github.com/taibuivan/gatekeep/internal/platform/respond"
)

// # Rate Limiting
//
// Two gates protect the API:
//
//  1. An in-memory token bucket per client IP (cheap first line, survives
//     Redis outages).
//  2. A Redis fixed-window counter per (route, principal) shared across
//     instances. The principal is the user ID when authenticated, the client
//     IP otherwise.

type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	mu      sync.Mutex
	clients = make(map[string]*rateLimitClient)
)

// RateLimit limits requests per IP using the token bucket algorithm.
func RateLimit(appContext context.Context) func(http.Handler) http.Handler {

	// Start a background cleanup routine that respects context cancellation
	go func() {
		ticker := time.NewTicker(constants.RateLimitCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mu.Lock()
				for ip, clientInfo := range clients {
					if time.Since(clientInfo.lastSeen) > constants.RateLimitClientTTL {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			case <-appContext.Done():
				// Stop the goroutine when the application shuts down
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// Identify the client by their IP address
			clientIP := RealIP(request)

			mu.Lock()
			clientInfo, found := clients[clientIP]

			// Initialize a new limiter if this is a fresh IP
			if !found {
				clientInfo = &rateLimitClient{
					limiter: rate.NewLimiter(
						rate.Limit(constants.DefaultRateLimitRPS),
						constants.DefaultRateLimitBurst,
					),
				}
				clients[clientIP] = clientInfo
			}

			// Update the activity timestamp
			clientInfo.lastSeen = time.Now()

			// Check if the request is allowed by the bucket
			if !clientInfo.limiter.Allow() {
				mu.Unlock()
				respond.Error(writer, request, apperr.RateLimited(1))
				return
			}
			mu.Unlock()

			next.ServeHTTP(writer, request)
		})
	}
}

// RouteRateLimit enforces a shared per-route request budget backed by Redis.
//
// # Algorithm
//
// A fixed window counter: INCR on rl:{route}:{principal}, with the TTL set
// atomically on the first increment of each window. If Redis is unreachable
// the request is allowed through — availability wins over strictness, and the
// in-memory [RateLimit] gate still applies.
func RouteRateLimit(client *redis.Client, limitPerWindow int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// 1. Resolve the principal: authenticated user ID, or client IP
			principal := RealIP(request)
			if claims := ctxutil.GetAuthUser(request.Context()); claims != nil {
				principal = claims.UserID
			}

			key := fmt.Sprintf("%s%s %s:%s",
				constants.RedisPrefixRateLimit, request.Method, request.URL.Path, principal)

			// 2. Increment the window counter atomically
			callCtx, cancel := context.WithTimeout(request.Context(), constants.CacheTimeout)
			defer cancel()

			pipe := client.TxPipeline()
			counter := pipe.Incr(callCtx, key)
			pipe.Expire(callCtx, key, constants.RateLimitWindow)
			if _, err := pipe.Exec(callCtx); err != nil {
				// Redis outage must never take the API down with it.
				ctxutil.GetLogger(request.Context()).WarnContext(request.Context(),
					"rate_limit_redis_unavailable", slog.Any("error", err))
				next.ServeHTTP(writer, request)
				return
			}

			// 3. Reject once the window budget is exhausted
			if counter.Val() > int64(limitPerWindow) {
				retryAfter := int(constants.RateLimitWindow.Seconds())
				writer.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				respond.Error(writer, request, apperr.RateLimited(retryAfter))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
