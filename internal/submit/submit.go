// Package submit delivers non-database form submissions to their remote target.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnsupportedTarget is returned for targets that are not absolute http(s) URLs.
	ErrUnsupportedTarget = errors.New("unsupported submit target")
	// ErrForbiddenTarget is returned for hosts outside the allowlist and for
	// addresses in loopback, private, link-local or other non-public ranges.
	ErrForbiddenTarget = errors.New("forbidden submit target")
)

// Submitter sends a mapped form payload to a target. A nil error means success.
type Submitter interface {
	Submit(ctx context.Context, target string, payload map[string]any) error
}

// Func adapts a function to Submitter.
type Func func(ctx context.Context, target string, payload map[string]any) error

// Submit calls f.
func (f Func) Submit(ctx context.Context, target string, payload map[string]any) error {
	return f(ctx, target, payload)
}

// HTTP posts the payload as JSON and treats any non-2xx status as failure.
// By default it only connects to public addresses.
type HTTP struct {
	client  *http.Client
	log     *zap.Logger
	allow   map[string]struct{}
	private bool
}

var _ Submitter = (*HTTP)(nil)

// HTTPOption configures an HTTP submitter.
type HTTPOption func(*HTTP)

// WithAllowHosts restricts targets to the given host names. Empty entries are ignored.
func WithAllowHosts(hosts ...string) HTTPOption {
	return func(h *HTTP) {
		for _, host := range hosts {
			if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
				h.allow[host] = struct{}{}
			}
		}
	}
}

// WithPrivateNetworks lets the submitter connect to non-public addresses.
func WithPrivateNetworks() HTTPOption {
	return func(h *HTTP) { h.private = true }
}

// NewHTTP constructs an HTTP submitter with a per-request timeout.
func NewHTTP(timeout time.Duration, log *zap.Logger, opts ...HTTPOption) *HTTP {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	h := &HTTP{log: log, allow: make(map[string]struct{})}
	for _, o := range opts {
		o(h)
	}

	dialer := &net.Dialer{Timeout: timeout}
	if !h.private {
		dialer.Control = publicOnly
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	h.client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return h.checkHost(req.URL)
		},
	}
	return h
}

func (h *HTTP) checkHost(u *url.URL) error {
	if len(h.allow) == 0 {
		return nil
	}
	if _, ok := h.allow[strings.ToLower(u.Hostname())]; !ok {
		return fmt.Errorf("%w: host %q not allowed", ErrForbiddenTarget, u.Hostname())
	}
	return nil
}

// publicOnly runs on every connection after name resolution, so redirects and
// rebinding DNS answers are checked as well.
func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublic(ip) {
		return fmt.Errorf("%w: address %s", ErrForbiddenTarget, host)
	}
	return nil
}

func isPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

// Submit POSTs payload to target.
func (h *HTTP) Submit(ctx context.Context, target string, payload map[string]any) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	if err := h.checkHost(u); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("submit: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Warn("submit failed", zap.String("host", u.Host), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	h.log.Info("submit",
		zap.String("host", u.Host),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("submit %s: status %d", u.Host, resp.StatusCode)
	}
	return nil
}
