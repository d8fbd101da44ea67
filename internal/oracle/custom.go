package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/predictify/marketengine/internal/domain"
)

// Custom queries an operator-supplied HTTP endpoint returning a plain JSON
// price payload, for markets whose oracle_config names a bespoke feed rather
// than one of the two named providers.
type Custom struct {
	endpoint string
	client   *http.Client
}

// NewCustom creates a Custom provider pointed at the given endpoint URL; the
// asset argument doubles as the endpoint when the caller has not configured
// one separately, mirroring how market records carry the feed identity
// directly in oracle_config.
func NewCustom(endpoint string) *Custom {
	return &Custom{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Variant identifies this provider in the tagged-variant dispatch.
func (c *Custom) Variant() domain.OracleVariant { return domain.OracleCustom }

type customResponse struct {
	Price       string  `json:"price"`
	Confidence  *uint64 `json:"confidence,omitempty"`
	PublishTime int64   `json:"publish_time"`
}

// FetchPrice fetches the latest reading from the configured custom endpoint.
func (c *Custom) FetchPrice(ctx context.Context, asset string, now int64) (domain.PricePoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("custom oracle: build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("custom oracle: request: %w: %w", err, domain.ErrOracleUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.PricePoint{}, fmt.Errorf("custom oracle: status %d: %w", resp.StatusCode, domain.ErrOracleUnavailable)
	}

	var out customResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.PricePoint{}, fmt.Errorf("custom oracle: decode: %w: %w", err, domain.ErrOracleUnavailable)
	}

	price, ok := new(big.Int).SetString(out.Price, 10)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("custom oracle: malformed price %q: %w", out.Price, domain.ErrOracleUnavailable)
	}

	return domain.PricePoint{
		Price:       price,
		Confidence:  out.Confidence,
		PublishTime: out.PublishTime,
	}, nil
}
