package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/predictify/marketengine/internal/domain"
)

// Pyth queries the Pyth Hermes price-service HTTP API.
type Pyth struct {
	asset   string
	baseURL string
	client  *http.Client
}

// NewPyth creates a Pyth provider for the given price feed ID / symbol.
func NewPyth(asset string) *Pyth {
	return &Pyth{
		asset:   asset,
		baseURL: "https://hermes.pyth.network/v2",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Variant identifies this provider in the tagged-variant dispatch.
func (p *Pyth) Variant() domain.OracleVariant { return domain.OraclePyth }

type pythResponse struct {
	Parsed []struct {
		Price struct {
			Price       string `json:"price"`
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

// FetchPrice fetches the latest reading for asset.
func (p *Pyth) FetchPrice(ctx context.Context, asset string, now int64) (domain.PricePoint, error) {
	u := fmt.Sprintf("%s/updates/price/latest?ids[]=%s", p.baseURL, url.QueryEscape(asset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("pyth: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("pyth: request: %w: %w", err, domain.ErrOracleUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.PricePoint{}, fmt.Errorf("pyth: status %d: %w", resp.StatusCode, domain.ErrOracleUnavailable)
	}

	var out pythResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.PricePoint{}, fmt.Errorf("pyth: decode: %w: %w", err, domain.ErrOracleUnavailable)
	}
	if len(out.Parsed) == 0 {
		return domain.PricePoint{}, fmt.Errorf("pyth: feed %s: %w", asset, domain.ErrOracleFeedNotFound)
	}

	raw := out.Parsed[0].Price
	price, ok := new(big.Int).SetString(raw.Price, 10)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("pyth: malformed price %q: %w", raw.Price, domain.ErrOracleUnavailable)
	}
	conf, ok := new(big.Int).SetString(raw.Conf, 10)
	var confidence *uint64
	if ok && conf.IsUint64() {
		v := conf.Uint64()
		confidence = &v
	}

	return domain.PricePoint{
		Price:       price,
		Confidence:  confidence,
		PublishTime: raw.PublishTime,
	}, nil
}
