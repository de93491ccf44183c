package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
)

// OTPThrottle ограничивает число писем с кодом на один email,
// независимо от того, с каких IP приходят запросы.
type OTPThrottle struct {
	limiter *limiter.Limiter
}

// NewOTPThrottle создаёт ограничитель: не больше limit кодов за period.
func NewOTPThrottle(store limiter.Store, limit int64, period time.Duration) *OTPThrottle {
	if limit <= 0 {
		limit = 5
	}
	if period <= 0 {
		period = 15 * time.Minute
	}
	return &OTPThrottle{
		limiter: limiter.New(store, limiter.Rate{Period: period, Limit: limit}),
	}
}

// Allow расходует одну попытку. Nil-ограничитель пропускает всё.
func (t *OTPThrottle) Allow(ctx context.Context, identifier string) error {
	if t == nil {
		return nil
	}

	res, err := t.limiter.Get(ctx, "otp:"+identifier)
	if err != nil {
		return fmt.Errorf("otp throttle: %w", err)
	}
	if res.Reached {
		return apperror.ErrRateLimited
	}
	return nil
}
