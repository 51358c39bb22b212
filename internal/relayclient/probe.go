package relayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Health is the relay's /healthz response.
type Health struct {
	Status      string `json:"status"`
	ActiveRooms int64  `json:"activeRooms"`
}

// Probe checks relay liveness over plain HTTP.
type Probe struct {
	baseURL string
	http    *fasthttp.Client

	timeout  time.Duration
	retryMax int
}

type ProbeOption func(*Probe)

func WithProbeTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) { p.timeout = d }
}

func WithProbeRetry(max int) ProbeOption {
	return func(p *Probe) { p.retryMax = max }
}

func NewProbe(baseURL string, opts ...ProbeOption) *Probe {
	p := &Probe{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		timeout:  5 * time.Second,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check hits /healthz, retrying transient failures with backoff.
func (p *Probe) Check(ctx context.Context) (*Health, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(p.baseURL + "/healthz")

	attempts := p.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := p.http.DoDeadline(req, resp, p.computeDeadline(ctx))
		if err == nil && resp.StatusCode() == fasthttp.StatusOK {
			var h Health
			if derr := json.Unmarshal(resp.Body(), &h); derr != nil {
				return nil, fmt.Errorf("decode health response: %w", derr)
			}
			return &h, nil
		}
		if err != nil {
			lastErr = fmt.Errorf("health request failed: %w", err)
		} else {
			lastErr = fmt.Errorf("relay unhealthy: status=%d", resp.StatusCode())
		}
		if attempt == attempts {
			break
		}
		if serr := sleepWithContext(ctx, backoffDuration(attempt)); serr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (p *Probe) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		probeDL := time.Now().Add(p.timeout)
		if dl.Before(probeDL) {
			return dl
		}
		return probeDL
	}
	return time.Now().Add(p.timeout)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
