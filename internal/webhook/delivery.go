// Package webhook implements the Webhook Delivery + Circuit Breaker
// component (spec §4.9): HTTP delivery via resty, breaker state per
// destination host via gobreaker.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// Outcome is the result Deliver reports (spec §4.9 contract).
type Outcome int

const (
	OutcomeOk Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

// Deliverer is the Webhook Delivery component.
type Deliverer struct {
	client   *resty.Client
	breakers *BreakerRegistry
}

// New builds a Deliverer. Each delivery gets at most two attempts (one
// retry), with a 0.5 s base retry wait capped at 2 s.
func New(timeout time.Duration, failThreshold int, resetTimeout time.Duration) *Deliverer {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)

	return &Deliverer{
		client:   client,
		breakers: NewBreakerRegistry(failThreshold, resetTimeout),
	}
}

// Deliver posts payload to target, routed through the per-host breaker.
func (d *Deliverer) Deliver(ctx context.Context, target string, payload Payload) (Outcome, error) {
	u, err := url.Parse(target)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("webhook: invalid target url: %w", err)
	}

	breaker := d.breakers.forHost(u.Host)
	body, err := json.Marshal(payload)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("webhook: marshal payload: %w", err)
	}

	_, err = breaker.Execute(func() ([]byte, error) {
		resp, reqErr := d.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(target)
		if reqErr != nil {
			return nil, reqErr
		}
		if resp.IsError() {
			return nil, fmt.Errorf("webhook: delivery to %s returned status %d", target, resp.StatusCode())
		}
		return resp.Body(), nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, err
	}
	return OutcomeOk, nil
}
