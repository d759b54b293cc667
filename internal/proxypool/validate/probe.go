package validate

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"proxyfleet/internal/proxypool/model"
)

// DialValidator is a real, pluggable Validator that dials the proxy
// endpoint and checks it can reach a target host. It is not wired as
// PoolManager's default, since active liveness probing stays out of
// scope for now, but gives the reserved Validator extension point a
// concrete, compiling option for callers who want one.
type DialValidator struct {
	// Target is the host:port a validated proxy must be able to reach.
	Target string
	// Timeout bounds the dial/request.
	Timeout time.Duration
}

// NewDialValidator builds a DialValidator with sane defaults.
func NewDialValidator(target string, timeout time.Duration) *DialValidator {
	if target == "" {
		target = "www.google.com:443"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DialValidator{Target: target, Timeout: timeout}
}

// Validate reports true if the endpoint accepted a proxied connection to
// Target within Timeout.
func (v *DialValidator) Validate(item *model.ProxyItem) bool {
	ctx, cancel := context.WithTimeout(context.Background(), v.Timeout)
	defer cancel()

	var err error
	switch item.Endpoint.Protocol {
	case model.ProtocolSocks5:
		err = v.checkSocks5(ctx, item)
	default:
		err = v.checkHTTPConnect(ctx, item)
	}
	return err == nil
}

func (v *DialValidator) checkHTTPConnect(ctx context.Context, item *model.ProxyItem) error {
	proxyURL, err := url.Parse(fmt.Sprintf("http://%s:%d", item.Endpoint.Host, item.Endpoint.Port))
	if err != nil {
		return err
	}
	if item.Endpoint.Username != "" {
		proxyURL.User = url.UserPassword(item.Endpoint.Username, item.Endpoint.Password)
	}

	dialer := &net.Dialer{Timeout: v.Timeout}
	transport := &http.Transport{
		Proxy: http.ProxyURL(proxyURL),
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	client := &http.Client{Transport: transport, Timeout: v.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+v.Target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("non-successful status code: %d", resp.StatusCode)
	}
	return nil
}

func (v *DialValidator) checkSocks5(ctx context.Context, item *model.ProxyItem) error {
	proxyAddr := fmt.Sprintf("%s:%d", item.Endpoint.Host, item.Endpoint.Port)
	var auth *proxy.Auth
	if item.Endpoint.Username != "" {
		auth = &proxy.Auth{User: item.Endpoint.Username, Password: item.Endpoint.Password}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, &net.Dialer{Timeout: v.Timeout})
	if err != nil {
		return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return fmt.Errorf("SOCKS5 dialer does not support contexts")
	}

	conn, err := contextDialer.DialContext(ctx, "tcp", v.Target)
	if err != nil {
		return err
	}
	return conn.Close()
}
