// Package oracle implements the abstract price-feed adapter (§4.F): a
// tagged-variant enum over concrete providers, each a pure function
// dispatched at the adapter boundary, plus the staleness/confidence/exponent
// policy and primary->fallback recovery shared by every variant.
package oracle

import (
	"context"

	"github.com/predictify/marketengine/internal/domain"
)

// Provider is implemented by each concrete oracle variant. Grounded on the
// teacher's internal/platform/{kalshi,polymarket} pattern of one package per
// external price source behind a shared call shape.
type Provider interface {
	Variant() domain.OracleVariant
	FetchPrice(ctx context.Context, asset string, now int64) (domain.PricePoint, error)
}

// NewProvider constructs the concrete Provider named by cfg.Variant. This is
// the tagged-variant dispatch point spec.md §9 calls for ("a tagged-variant
// enum in the oracle adapter ... dispatched at the adapter boundary").
func NewProvider(cfg domain.OracleConfig) (Provider, error) {
	switch cfg.Variant {
	case domain.OracleReflector:
		return NewReflector(cfg.Asset), nil
	case domain.OraclePyth:
		return NewPyth(cfg.Asset), nil
	case domain.OracleCustom:
		return NewCustom(cfg.Asset), nil
	default:
		return nil, domain.ErrInvalidOracleConfig
	}
}
