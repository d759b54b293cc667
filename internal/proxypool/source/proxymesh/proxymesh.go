// Package proxymesh implements the single-endpoint ProxySource archetype:
// one statically configured host/port/credential behind an active flag.
// Fetch returns exactly one item regardless of the requested count, as
// long as the source is active; Release flips the flag off, and
// Reactivate (an ops/test hook) flips it back on.
package proxymesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"proxyfleet/internal/proxypool/model"
	"proxyfleet/internal/proxypool/source"
)

const tag = "proxymesh"

// Config is the static endpoint configuration for a ProxyMesh-style
// single-endpoint account.
type Config struct {
	Host     string
	Port     int
	Protocol model.Protocol // defaults to http
	Username string
	Password string
}

func (c Config) withDefaults() Config {
	if c.Protocol == "" {
		c.Protocol = model.ProtocolHTTP
	}
	return c
}

// Source is the ProxySource implementation for a single static endpoint.
// It implements ReleaseCapable: Release deactivates the endpoint.
type Source struct {
	cfg Config

	mu     sync.Mutex
	active bool
}

// New builds a ProxyMesh source, active by default.
func New(cfg Config) *Source {
	return &Source{cfg: cfg.withDefaults(), active: true}
}

func (s *Source) Tag() string { return tag }

// Fetch returns exactly one item describing the configured endpoint,
// regardless of count, provided the source is active. It fails when
// inactive. The endpoint itself is static, so the id mixes in a fresh
// uuid per call: two items fetched from the same endpoint while an
// earlier one is still resident in the pool (e.g. one is in_use, or a
// discard hasn't landed yet) must never collide.
func (s *Source) Fetch(ctx context.Context, count int) ([]*model.ProxyItem, error) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if !active {
		return nil, &source.FetchError{SourceTag: tag, Cause: fmt.Errorf("endpoint is inactive")}
	}

	item := &model.ProxyItem{
		ID:        fmt.Sprintf("%s:%s:%d-%s", tag, s.cfg.Host, s.cfg.Port, uuid.NewString()),
		Source:    tag,
		CreatedAt: time.Now(),
		Endpoint: model.Endpoint{
			Host:     s.cfg.Host,
			Port:     s.cfg.Port,
			Protocol: s.cfg.Protocol,
			Username: s.cfg.Username,
			Password: s.cfg.Password,
		},
	}
	return []*model.ProxyItem{item}, nil
}

// Release deactivates the endpoint. It is idempotent.
func (s *Source) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	return nil
}

// Reactivate restores the endpoint to active. Ops/test hook: the vendor
// API has no corresponding remote call, this only affects local state.
func (s *Source) Reactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
}

// Validate implements ValidateCapable: a sanity check that the item's
// Source tag is this source's tag. The id and endpoint are not compared.
func (s *Source) Validate(item *model.ProxyItem) bool {
	return item != nil && item.Source == tag
}
