package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/service"
	"fsp-staking/internal/storage"
	"fsp-staking/internal/token"
	"fsp-staking/internal/units"
	"fsp-staking/internal/verification"
)

const jsonContentType = "application/json; charset=utf-8"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type httpError struct {
	cause  error
	status int
}

func (e *httpError) Error() string {
	return e.cause.Error()
}

func (e *httpError) Unwrap() error {
	return e.cause
}

func badRequest(cause error) error {
	return &httpError{cause: cause, status: http.StatusBadRequest}
}

func badRequestf(format string, args ...any) error {
	return badRequest(fmt.Errorf(format, args...))
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// handlerFunc is an http.HandlerFunc that returns an error.
type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap converts a handlerFunc, mapping its error to a status code.
func (s *Server) wrap(f handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err == nil {
			return
		}
		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		}
		writeJSON(w, status, body)
	}
}

// classify maps an error to a status and a response body. Revert reasons
// carry their code; lookups of unknown pools and tokens are 404s.
func classify(err error) (int, ErrorResponse) {
	var he *httpError
	if errors.As(err, &he) {
		return he.status, ErrorResponse{Error: he.cause.Error()}
	}
	code := reverts.Code(err)
	switch {
	case errors.Is(err, reverts.ErrUnknownPool):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: code}
	case code != "":
		return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: code}
	case errors.Is(err, token.ErrUnknownToken), errors.Is(err, storage.ErrNotFound), errors.Is(err, verification.ErrPoolNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error()}
	case errors.Is(err, service.ErrTokenExists), errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict, ErrorResponse{Error: err.Error()}
	case errors.Is(err, service.ErrAnalyticsDisabled):
		return http.StatusNotImplemented, ErrorResponse{Error: err.Error()}
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseJSON decodes a request body in strict mode.
func parseJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequestf("body: %w", err)
	}
	return nil
}

func pathAddress(r *http.Request, name string) (domain.Address, error) {
	raw := mux.Vars(r)[name]
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		return domain.Address{}, badRequestf("%s: %w", name, err)
	}
	return addr, nil
}

func requireAddress(name string, a domain.Address) error {
	if a.IsZero() {
		return badRequestf("%s: required", name)
	}
	return nil
}

// parseAmount parses a decimal base-unit string. An empty optional amount is zero.
func parseAmount(name, s string, required bool) (*uint256.Int, error) {
	if s == "" {
		if required {
			return nil, badRequestf("%s: required", name)
		}
		return new(uint256.Int), nil
	}
	v, err := units.ParseBase(s)
	if err != nil {
		return nil, badRequestf("%s: %w", name, err)
	}
	return v, nil
}

func queryInt64(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequestf("%s: not an integer", name)
	}
	return v, nil
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
