package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/predictify/marketengine/internal/domain"
	"github.com/predictify/marketengine/internal/host"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps an engine error to a response using its
// domain.ErrorKind, so the transport layer never has to know the specific
// sentinel a handler's call can fail with.
func writeEngineError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{
		"error": err.Error(),
		"code":  domain.CodeOf(err),
	})
}

// statusFor maps a domain.ErrorKind to the HTTP status code that best
// represents it.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState, domain.KindConflict:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindOracle:
		return http.StatusServiceUnavailable
	case domain.KindResource:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads and decodes a JSON request body into dst, rejecting
// unknown fields so malformed clients fail loudly instead of silently
// dropping data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// authEnvelope is the JSON shape every mutating entrypoint's request body
// embeds alongside its domain-specific fields, carrying the material
// host.Authenticator checks against the caller's declared identity.
// []byte fields marshal to and from base64 automatically via encoding/json.
type authEnvelope struct {
	Signature []byte `json:"signature"`
	Payload   []byte `json:"payload"`
	Nonce     uint64 `json:"nonce"`
}

func (a authEnvelope) toHost() host.AuthRequest {
	return host.AuthRequest{Signature: a.Signature, Payload: a.Payload, Nonce: a.Nonce}
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// paginate slices a full result set according to opts. Every query
// entrypoint below computes its full result in memory (mirroring
// market.Registry.ListAll's own O(n)-is-fine reasoning), so pagination is
// applied at the transport edge rather than pushed into the engine.
func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	end := opts.Offset + opts.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[opts.Offset:end]
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
