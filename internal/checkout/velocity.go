package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/copacabanabeauty/salon-booking/pkg/logging"
)

// VelocityGuard limits how many deposit sessions one email may open inside a
// window. It fails open when Redis is unavailable.
type VelocityGuard struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains the velocity limits.
type VelocityConfig struct {
	MaxPerEmail int
	Window      time.Duration
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxPerEmail: 5,
		Window:      time.Hour,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityGuard creates a guard. A nil client or a non-positive limit
// disables the check.
func NewVelocityGuard(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityGuard {
	if logger == nil {
		logger = logging.Default()
	}
	if config.Window <= 0 {
		config.Window = DefaultVelocityConfig().Window
	}
	return &VelocityGuard{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// Check counts an attempt for email and reports whether it is allowed.
func (v *VelocityGuard) Check(ctx context.Context, email string) *VelocityResult {
	if v == nil || v.redis == nil || v.config.MaxPerEmail <= 0 {
		return &VelocityResult{Allowed: true}
	}

	ctx, span := tracer.Start(ctx, "velocity.check_checkout")
	defer span.End()

	key := velocityKey(email)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxPerEmail,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxPerEmail,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d checkout attempts in %s", v.config.MaxPerEmail, v.config.Window)
		v.logger.Warn("checkout velocity exceeded", "count", count, "max", v.config.MaxPerEmail)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result
}

// incrementAndGet bumps the counter and sets its expiry in one transaction.
// EXPIRE NX only arms a key that has no TTL yet, so a counter can never be
// left without one.
func (v *VelocityGuard) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := v.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return int(incr.Val()), time.Now().Add(remaining), nil
}

func velocityKey(email string) string {
	return "velocity:checkout:" + strings.ToLower(strings.TrimSpace(email))
}
