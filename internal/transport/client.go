package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"portalkeys-go/internal/models"
)

const (
	defaultDialTimeout           = 10 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
)

// Options configures the HTTP transport.
type Options struct {
	// OnlineBaseURL and LocationBaseURL are the sharing API roots used for
	// cloud environments that do not carry their own portal URL.
	OnlineBaseURL   string
	LocationBaseURL string
	ProxyURL        string
	// RatePerSecond, when positive, caps outgoing request rate.
	RatePerSecond float64
}

// Client is the http.Client-backed Requester implementation.
type Client struct {
	cli     *http.Client
	opts    Options
	limiter *rate.Limiter
}

// New builds a Client with tuned transport timeouts. Requests themselves
// carry no overall deadline; callers wrap the context when they need one.
func New(opts Options) *Client {
	tr := &http.Transport{
		Proxy: proxyFunc(opts.ProxyURL),
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}

	c := &Client{cli: &http.Client{Transport: tr}, opts: opts}
	if opts.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), int(opts.RatePerSecond)+1)
	}
	return c
}

func proxyFunc(proxyURL string) func(*http.Request) (*url.URL, error) {
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			return http.ProxyURL(parsed)
		}
	}
	return http.ProxyFromEnvironment
}

// Do issues one portal REST call and returns the parsed JSON body. A body
// containing an "error" key is returned as a *PortalError even when the
// HTTP status was 200, which is how the portal reports most failures.
func (c *Client) Do(ctx context.Context, req Request) (gjson.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, fmt.Errorf("network request failed: %w", err)
		}
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return gjson.Result{}, err
	}

	start := time.Now()
	resp, err := c.cli.Do(httpReq)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("network request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("network read failed: %w", err)
	}

	log.WithFields(log.Fields{
		"method":      req.Method,
		"path":        req.Path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("portal request")

	parsed := gjson.ParseBytes(body)
	if errObj := parsed.Get("error"); errObj.Exists() {
		return gjson.Result{}, portalErrorFrom(errObj, parsed.Raw)
	}
	if resp.StatusCode >= 400 {
		return gjson.Result{}, &PortalError{
			Code:    resp.StatusCode,
			Message: strings.TrimSpace(firstNonEmpty(parsed.Get("message").String(), http.StatusText(resp.StatusCode))),
			Raw:     truncate(string(body), 500),
		}
	}
	return parsed, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	base, err := c.baseURL(req.Env)
	if err != nil {
		return nil, err
	}
	full := base + req.Path

	query := url.Values{}
	for k, vs := range req.Query {
		query[k] = vs
	}
	query.Set("f", "json")

	var body io.Reader
	headers := http.Header{}
	switch req.Method {
	case http.MethodGet:
		query.Set("token", req.Token)
	case http.MethodPost:
		form := url.Values{}
		for k, vs := range req.Body {
			form[k] = vs
		}
		form.Set("f", "json")
		form.Set("token", req.Token)
		body = strings.NewReader(form.Encode())
		headers.Set("Content-Type", "application/x-www-form-urlencoded")
	default:
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}

	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, full, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range headers {
		httpReq.Header[k] = vs
	}
	httpReq.Header.Set("Accept", "application/json")
	return httpReq, nil
}

func (c *Client) baseURL(env models.Environment) (string, error) {
	if env.PortalURL != "" {
		return strings.TrimRight(env.PortalURL, "/") + "/sharing/rest", nil
	}
	switch env.Type {
	case models.DeploymentOnline:
		return strings.TrimRight(c.opts.OnlineBaseURL, "/"), nil
	case models.DeploymentLocationPlatform:
		return strings.TrimRight(c.opts.LocationBaseURL, "/"), nil
	case models.DeploymentEnterprise:
		return "", fmt.Errorf("enterprise environment %q has no portal URL", env.Name)
	}
	return "", fmt.Errorf("unknown deployment type %q", env.Type)
}

func portalErrorFrom(errObj gjson.Result, raw string) *PortalError {
	var details []string
	for _, d := range errObj.Get("details").Array() {
		if s := strings.TrimSpace(d.String()); s != "" {
			details = append(details, s)
		}
	}
	return &PortalError{
		Code:    int(errObj.Get("code").Int()),
		Message: errObj.Get("message").String(),
		Details: details,
		Raw:     truncate(raw, 500),
	}
}

func firstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
