package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHTTPForbidden
		}
	}
}

// loginRateLimitMiddleware limits attempts per client IP using redis.
// Fail-open: a cache error never blocks a login.
func loginRateLimitMiddleware(rdb *redis.Client, maxPerMin int) echo.MiddlewareFunc {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if rdb == nil {
				return next(ctx)
			}
			rctx := ctx.Request().Context()
			key := "rl:login:" + ctx.RealIP()
			cnt, err := rdb.Incr(rctx, key).Result()
			if err != nil {
				return next(ctx)
			}
			if cnt == 1 {
				rdb.Expire(rctx, key, time.Minute)
			}
			if cnt > int64(maxPerMin) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
			}
			return next(ctx)
		}
	}
}
