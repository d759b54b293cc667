// Package publiclist implements a third, scraped-rather-than-API-pulled
// ProxySource archetype: it fetches a public HTML proxy-list page and
// parses table rows into ProxyItems. It never implements ReleaseCapable —
// there is no session to release against a free public listing — but does
// implement ValidateCapable with a trivial id-format check.
package publiclist

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"proxyfleet/internal/proxypool/model"
	"proxyfleet/internal/proxypool/source"
	"proxyfleet/internal/shared/logger"
)

const tag = "publiclist"

// Config points at a single listing page and its row selector.
type Config struct {
	URL string
	// RowSelector defaults to "table.table-bordered tbody tr".
	RowSelector string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RowSelector == "" {
		c.RowSelector = "table.table-bordered tbody tr"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 20 * time.Second
	}
	return c
}

// Source scrapes a single public proxy-list page per Fetch call.
type Source struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Source {
	cfg = cfg.withDefaults()
	return &Source{cfg: cfg, client: &http.Client{Timeout: cfg.HTTPTimeout}}
}

func (s *Source) Tag() string { return tag }

// Fetch requests the configured page once and parses up to count rows
// into ProxyItems. The page itself has no concept of "count": Fetch
// truncates locally, matching the "may return fewer, must not return
// more" contract.
func (s *Source) Fetch(ctx context.Context, count int) ([]*model.ProxyItem, error) {
	l := logger.WithComponent("publiclist")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, &source.FetchError{SourceTag: tag, Cause: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &source.FetchError{SourceTag: tag, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &source.FetchError{SourceTag: tag, Cause: fmt.Errorf("non-200 status: %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &source.FetchError{SourceTag: tag, Cause: fmt.Errorf("parse HTML: %w", err)}
	}

	var items []*model.ProxyItem
	doc.Find(s.cfg.RowSelector).Each(func(_ int, row *goquery.Selection) {
		if len(items) >= count {
			return
		}
		ip := strings.TrimSpace(row.Find("td").Eq(0).Text())
		portStr := strings.TrimSpace(row.Find("td").Eq(1).Text())
		if ip == "" || portStr == "" {
			return
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			l.Debug().Str("ip", ip).Str("port", portStr).Msg("skipping row with unparseable port")
			return
		}

		items = append(items, &model.ProxyItem{
			ID:        fmt.Sprintf("%s:%d-%s", ip, port, tag),
			Source:    tag,
			CreatedAt: time.Now(),
			Endpoint: model.Endpoint{
				Host:     ip,
				Port:     port,
				Protocol: model.ProtocolHTTP,
			},
		})
	})

	if len(items) == 0 {
		return nil, &source.FetchError{SourceTag: tag, Cause: fmt.Errorf("no rows matched selector %q", s.cfg.RowSelector)}
	}

	return items, nil
}

// Validate implements ValidateCapable: a trivial check that the item's id
// has the "host:port-publiclist" shape this source produces.
func (s *Source) Validate(item *model.ProxyItem) bool {
	return item != nil && strings.HasSuffix(item.ID, "-"+tag)
}
