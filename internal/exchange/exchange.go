// Package exchange converts wincoin balances to bitcoin at a rate fetched
// from an external random-number service.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/princekumarofficial/winsome/internal/cache"
	"github.com/princekumarofficial/winsome/internal/types"
)

// ErrUnavailable is returned when no rate could be obtained.
var ErrUnavailable = errors.New("exchange rate unavailable")

const unit = "btc"

// maxBody caps the rate response; a plain decimal fits easily.
const maxBody = 64

type Client struct {
	http   *http.Client
	url    string
	cache  *cache.CacheService
	ttl    time.Duration
	logger *slog.Logger
}

// NewClient builds a converter. A nil cache fetches a fresh rate on every
// call.
func NewClient(url string, timeout time.Duration, rates *cache.CacheService, ttl time.Duration, logger *slog.Logger) *Client {
	if ttl <= 0 {
		ttl = cache.ExchangeRateCacheDuration
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		url:    url,
		cache:  rates,
		ttl:    ttl,
		logger: logger,
	}
}

// Convert prices wincoin in bitcoin.
func (c *Client) Convert(ctx context.Context, wincoin float64) (types.ExchangeView, error) {
	rate, err := c.Rate(ctx)
	if err != nil {
		return types.ExchangeView{}, err
	}
	return types.ExchangeView{
		Wincoin: wincoin,
		Rate:    rate,
		BTC:     wincoin * rate,
	}, nil
}

// Rate returns the current wincoin to bitcoin rate.
func (c *Client) Rate(ctx context.Context) (float64, error) {
	key := cache.Key(cache.ExchangeRateKey, unit)

	if c.cache != nil {
		var rate float64
		hit, err := c.cache.GetJSON(ctx, key, &rate)
		if err != nil {
			c.logger.Warn("exchange rate cache read failed", slog.String("error", err.Error()))
		} else if hit {
			return rate, nil
		}
	}

	rate, err := c.fetch(ctx)
	if err != nil {
		c.logger.Error("exchange rate fetch failed", slog.String("error", err.Error()))
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, key, rate, c.ttl); err != nil {
			c.logger.Warn("exchange rate cache write failed", slog.String("error", err.Error()))
		}
	}
	return rate, nil
}

func (c *Client) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, err
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed rate %q", body)
	}
	if rate < 0 {
		return 0, fmt.Errorf("negative rate %v", rate)
	}
	return rate, nil
}
