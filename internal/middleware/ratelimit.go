package middleware

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"SiteSign/config"
	"SiteSign/internal/cache"
	"SiteSign/pkg/errors"
	"SiteSign/pkg/logger"
	"SiteSign/pkg/response"
)

// RateLimitConfig limits requests per visit.
type RateLimitConfig struct {
	Window        time.Duration
	MaxRequests   int
	KeyPrefix     string
	BlockDuration time.Duration
}

// NotifyRateLimitConfig caps reminder dispatches so a misbehaving device
// cannot flood a visitor with pushes.
func NotifyRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:        time.Minute,
		MaxRequests:   config.Cfg.NotifyRateLimitPerMinute,
		KeyPrefix:     "notify",
		BlockDuration: 5 * time.Minute,
	}
}

// visitKey pulls visitId out of the JSON body; hertz keeps the body readable
// for the handler.
func visitKey(c *app.RequestContext) string {
	var req struct {
		VisitID string `json:"visitId"`
	}
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		return ""
	}
	return req.VisitID
}

// VisitRateLimitMiddleware applies cfg with a sliding window per visitId.
// Requests without a visitId pass through and fail validation downstream.
// Redis errors fail open.
func VisitRateLimitMiddleware(cfg RateLimitConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		visitID := visitKey(c)
		if visitID == "" || cfg.MaxRequests <= 0 {
			c.Next(ctx)
			return
		}

		key := cfg.KeyPrefix + ":" + visitID

		blocked, err := cache.IsBlocked(ctx, key)
		if err != nil {
			logger.Logger.Warn("Failed to check block status", zap.String("visit_id", visitID), zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			c.Abort()
			response.Error(ctx, c, errors.RateLimited)
			return
		}

		count, err := cache.SlidingWindowHit(ctx, key, cfg.Window, time.Now())
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit", zap.String("visit_id", visitID), zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > cfg.MaxRequests {
			if cfg.BlockDuration > 0 {
				if err := cache.Block(ctx, key, cfg.BlockDuration); err != nil {
					logger.Logger.Error("Failed to block visit", zap.String("visit_id", visitID), zap.Error(err))
				}
			}
			logger.Logger.Warn("Dispatch rate limit exceeded",
				zap.String("visit_id", visitID),
				zap.Int("count", count),
			)
			c.Abort()
			response.Error(ctx, c, errors.RateLimited)
			return
		}

		c.Next(ctx)
	}
}
