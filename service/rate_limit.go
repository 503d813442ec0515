// Copyright 2025 SurveyFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis-backed distributed rate limiting with in-memory fallback.
// Each client gets a one-minute sliding window; replicas share the
// window through Redis, and a replica without Redis falls back to
// per-replica in-memory counting.

var redisClient *redis.Client

// initRedis initializes the Redis connection pool
func initRedis(redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	redisClient = client
	log.Println("✅ Redis connected for distributed rate limiting")
	return nil
}

// checkRateLimitRedis checks the sliding-window rate limit in Redis.
// Returns an error when the limit is exceeded.
func checkRateLimitRedis(ctx context.Context, clientID string, limitPerMinute int) error {
	if redisClient == nil {
		return checkRateLimit(clientID, limitPerMinute)
	}

	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s", clientID)

	pipe := redisClient.Pipeline()

	// Drop timestamps older than one minute, count the window, record this request
	minScore := now.Add(-time.Minute).UnixNano()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		// On Redis error, fail open (allow request) and log
		log.Printf("Warning: Redis rate limit check failed for %s: %v (failing open)", clientID, err)
		return nil
	}

	count := cmds[1].(*redis.IntCmd).Val()
	if count >= int64(limitPerMinute) {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", count+1, limitPerMinute)
	}

	return nil
}

// In-memory fallback limiter

type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

var (
	rateLimitMap = make(map[string]*rateLimitEntry)
	rateLimitMu  sync.Mutex
)

// checkRateLimit implements fixed-window in-memory rate limiting
func checkRateLimit(clientID string, limitPerMinute int) error {
	now := time.Now()

	rateLimitMu.Lock()
	defer rateLimitMu.Unlock()

	entry, exists := rateLimitMap[clientID]
	if !exists || now.After(entry.resetTime) {
		rateLimitMap[clientID] = &rateLimitEntry{
			count:     1,
			resetTime: now.Add(time.Minute),
		}
		return nil
	}

	entry.count++
	if entry.count > limitPerMinute {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", entry.count, limitPerMinute)
	}

	return nil
}

// resetRateLimiter clears limiter state, used between tests
func resetRateLimiter() {
	rateLimitMu.Lock()
	defer rateLimitMu.Unlock()
	rateLimitMap = make(map[string]*rateLimitEntry)
}
