// Package transport ships event batches to the collector over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fasthttp"

	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/event"
)

// DeviceHeader carries the device id of a batch so the collector can
// rate limit per device.
const DeviceHeader = "X-Beacon-Device"

const DefaultTimeout = 10 * time.Second

var ErrNoEndpoint = errors.New("transport: endpoint is empty")

// StatusError reports a non-2xx response from the collector.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("collector responded with status %d: %s", e.StatusCode, e.Body)
}

type Options struct {
	Endpoint string
	// Compress gzips request bodies.
	Compress  bool
	Timeout   time.Duration
	UserAgent string
	Clock     clock.Clock
}

// HTTP is a stateless Transport. Each Deliver call is one POST.
type HTTP struct {
	endpoint  string
	compress  bool
	timeout   time.Duration
	userAgent string
	clock     clock.Clock
	client    *fasthttp.Client
}

func NewHTTP(opts Options) (*HTTP, error) {
	if opts.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "beacon"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &HTTP{
		endpoint:  opts.Endpoint,
		compress:  opts.Compress,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		clock:     opts.Clock,
		client: &fasthttp.Client{
			Name:                     opts.UserAgent,
			NoDefaultUserAgentHeader: true,
			MaxIdleConnDuration:      30 * time.Second,
		},
	}, nil
}

// Deliver posts the batch envelope. The attempt ends at the earlier of
// ctx's deadline and the configured timeout.
func (t *HTTP) Deliver(ctx context.Context, batch []event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event.NewBatch(batch, t.clock.Now()))
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(t.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.SetUserAgent(t.userAgent)
	if len(batch) > 0 && batch[0].DeviceID != "" {
		req.Header.Set(DeviceHeader, batch[0].DeviceID)
	}

	if t.compress {
		compressed, err := gzipBytes(body)
		if err != nil {
			return fmt.Errorf("compress batch: %w", err)
		}
		req.Header.Set(fasthttp.HeaderContentEncoding, "gzip")
		req.SetBodyRaw(compressed)
	} else {
		req.SetBodyRaw(body)
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("post %s: %w", t.endpoint, err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return &StatusError{StatusCode: status, Body: truncate(string(resp.Body()), 256)}
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
