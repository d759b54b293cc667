// Package oculus implements the multi-pull, API-based ProxySource
// archetype described in the design: one HTTP call per Fetch, the vendor
// returning up to the requested count of "host:port:user:pass" strings.
// Release is a no-op: sessions expire server-side.
package oculus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"proxyfleet/internal/proxypool/model"
	"proxyfleet/internal/proxypool/source"
	"proxyfleet/internal/shared/logger"
)

const tag = "oculus"

// Config is the vendor-specific credential/selection surface for a single
// Oculus-style account.
type Config struct {
	BaseURL       string // defaults to https://api.oculusproxies.com/v1/configure
	OrderToken    string
	PlanType      string
	Country       string
	EnableSocks5  bool
	WhitelistIPs  []string
	HTTPTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.oculusproxies.com/v1/configure"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 20 * time.Second
	}
	return c
}

// Source is the ProxySource implementation for Oculus. It implements
// source.ProxySource only (no ReleaseCapable) and an explicit no-op
// Release is documented, not implemented, per the vendor's stateless
// session model.
type Source struct {
	cfg    Config
	client *http.Client
}

// New builds an Oculus source from cfg.
func New(cfg Config) *Source {
	cfg = cfg.withDefaults()
	return &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

func (s *Source) Tag() string { return tag }

type orderRequest struct {
	OrderToken     string   `json:"orderToken"`
	PlanType       string   `json:"planType"`
	NumberOfProxies int     `json:"numberOfProxies"`
	Country        string   `json:"country,omitempty"`
	EnableSocks5   bool     `json:"enableSocks5"`
	WhiteListIP    []string `json:"whiteListIP,omitempty"`
}

// Fetch posts an order/plan/country/whitelist payload and parses a JSON
// array of "host:port:user:pass" strings on 2xx. On non-2xx it reads the
// vendor's x-tlp-err-code/x-tlp-err-msg headers and composes a message
// from them. Malformed entries are skipped; a response with no usable
// entry at all is a FetchError.
func (s *Source) Fetch(ctx context.Context, count int) ([]*model.ProxyItem, error) {
	l := logger.WithComponent("oculus")

	payload := orderRequest{
		OrderToken:      s.cfg.OrderToken,
		PlanType:        s.cfg.PlanType,
		NumberOfProxies: count,
		Country:         s.cfg.Country,
		EnableSocks5:    s.cfg.EnableSocks5,
		WhiteListIP:     s.cfg.WhitelistIPs,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &source.FetchError{SourceTag: tag, Cause: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, &source.FetchError{SourceTag: tag, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.OrderToken)

	resp, err := s.client.Do(req)
	if err != nil {
		l.Warn().Err(err).Msg("request failed")
		return nil, &source.FetchError{SourceTag: tag, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := resp.Header.Get("x-tlp-err-code")
		msg := resp.Header.Get("x-tlp-err-msg")
		cause := fmt.Errorf("vendor error (status=%d code=%s msg=%s)", resp.StatusCode, code, msg)
		return nil, &source.FetchError{SourceTag: tag, Cause: cause}
	}

	var raw []string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &source.FetchError{SourceTag: tag, Cause: fmt.Errorf("decode response: %w", err)}
	}

	protocol := model.ProtocolHTTP
	if s.cfg.EnableSocks5 {
		protocol = model.ProtocolSocks5
	}

	items := make([]*model.ProxyItem, 0, len(raw))
	for _, entry := range raw {
		item, err := parseEntry(entry, protocol)
		if err != nil {
			l.Warn().Err(err).Str("entry", entry).Msg("skipping malformed proxy entry")
			continue
		}
		items = append(items, item)
	}

	if len(items) > count {
		items = items[:count]
	}
	if len(items) == 0 {
		return nil, &source.FetchError{SourceTag: tag, Cause: fmt.Errorf("response contained no usable proxy entries")}
	}
	return items, nil
}

// parseEntry parses a vendor "host:port:user:pass" string into a
// ProxyItem. The id is a fresh UUID: the vendor payload carries no stable
// identifier of its own, and successive orders may reissue the same
// host:port against a different session.
func parseEntry(entry string, protocol model.Protocol) (*model.ProxyItem, error) {
	parts := strings.SplitN(entry, ":", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected host:port:user:pass, got %q", entry)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid port in %q: %w", entry, err)
	}

	return &model.ProxyItem{
		ID:         uuid.NewString(),
		Source:     tag,
		CreatedAt:  time.Now(),
		TTLSeconds: 0,
		Endpoint: model.Endpoint{
			Host:     parts[0],
			Port:     port,
			Protocol: protocol,
			Username: parts[2],
			Password: parts[3],
		},
	}, nil
}
