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

// Reflector queries a Reflector-compatible price feed contract over its HTTP
// gateway. Grounded on the teacher's internal/platform/polymarket/gamma.go
// shape: a small struct holding a base URL and *http.Client, one method that
// builds a request, decodes JSON, and maps it onto the domain type.
type Reflector struct {
	asset   string
	baseURL string
	client  *http.Client
}

// NewReflector creates a Reflector provider for the given asset symbol.
func NewReflector(asset string) *Reflector {
	return &Reflector{
		asset:   asset,
		baseURL: "https://reflector.network/api/v1",
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Variant identifies this provider in the tagged-variant dispatch.
func (r *Reflector) Variant() domain.OracleVariant { return domain.OracleReflector }

type reflectorResponse struct {
	Price       string `json:"price"`
	Decimals    int32  `json:"decimals"`
	Timestamp   int64  `json:"timestamp"`
	Confidence  *uint64 `json:"confidence,omitempty"`
}

// FetchPrice fetches the latest reading for asset.
func (r *Reflector) FetchPrice(ctx context.Context, asset string, now int64) (domain.PricePoint, error) {
	u := fmt.Sprintf("%s/price?asset=%s", r.baseURL, url.QueryEscape(asset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("reflector: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("reflector: request: %w: %w", err, domain.ErrOracleUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.PricePoint{}, fmt.Errorf("reflector: feed %s: %w", asset, domain.ErrOracleFeedNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.PricePoint{}, fmt.Errorf("reflector: status %d: %w", resp.StatusCode, domain.ErrOracleUnavailable)
	}

	var out reflectorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.PricePoint{}, fmt.Errorf("reflector: decode: %w: %w", err, domain.ErrOracleUnavailable)
	}

	price, ok := new(big.Int).SetString(out.Price, 10)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("reflector: malformed price %q: %w", out.Price, domain.ErrOracleUnavailable)
	}

	return domain.PricePoint{
		Price:       price,
		Confidence:  out.Confidence,
		PublishTime: out.Timestamp,
	}, nil
}
