package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	HTTPUserAgent = "kanshi health check"
)

const (
	HTTP_REDIRECT_MAX = 10

	defaultHTTPTimeout = 10 * time.Second
)

var (
	ErrRedirectLoopDetected = errors.New("redirect loop detected")

	httpClient = &http.Client{
		Transport: &http.Transport{
			DisableKeepAlives:     true,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > HTTP_REDIRECT_MAX {
				return ErrRedirectLoopDetected
			}
			return nil
		},
	}
)

// HTTPChecker probes an HTTP endpoint. It is the only checker that reports a
// response time, which feeds latency anomaly detection.
type HTTPChecker struct {
	name    string
	url     *url.URL
	expect  []int
	timeout time.Duration
}

// NewHTTP builds an HTTP checker.
// expect lists acceptable status codes; empty means any 2xx.
func NewHTTP(name, rawURL string, expect []int, timeout time.Duration) (*HTTPChecker, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	if rawURL == "" {
		return nil, ErrMissingURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, ErrMissingHost
	}
	if u.Path == "" {
		u.Path = "/"
	}

	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &HTTPChecker{
		name:    name,
		url:     u,
		expect:  expect,
		timeout: timeout,
	}, nil
}

func (c *HTTPChecker) ID() string {
	return c.name
}

func (c *HTTPChecker) Category() Category {
	return CategoryHTTP
}

// URL returns the probed URL. The TLS sweep reuses it for https targets.
func (c *HTTPChecker) URL() *url.URL {
	return c.url
}

func (c *HTTPChecker) statusOK(code int) bool {
	if len(c.expect) == 0 {
		return 200 <= code && code <= 299
	}
	for _, want := range c.expect {
		if code == want {
			return true
		}
	}
	return false
}

func (c *HTTPChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url.String(), nil)
	if err != nil {
		return Result{Healthy: false, Error: err.Error()}
	}
	req.Header.Set("User-Agent", HTTPUserAgent)

	st := time.Now()
	resp, err := httpClient.Do(req)
	d := time.Since(st)

	if err != nil {
		return timeoutOr(ctx, Result{Healthy: false, Error: err.Error()})
	}

	length, _ := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.ContentLength >= 0 {
		length = resp.ContentLength
	}

	r := Result{
		Healthy:      c.statusOK(resp.StatusCode),
		ResponseTime: d,
		Detail: map[string]string{
			"status": strconv.Itoa(resp.StatusCode),
			"proto":  resp.Proto,
			"length": strconv.FormatInt(length, 10),
		},
	}
	if !r.Healthy {
		r.Error = fmt.Sprintf("unexpected status: %s", strings.ReplaceAll(resp.Status, " ", "_"))
	}

	return timeoutOr(ctx, r)
}
