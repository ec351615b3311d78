package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shinobiwanshin/Sweetify/middleware"
	"github.com/shinobiwanshin/Sweetify/utils"
)

// maxBodyBytes caps every JSON request body
const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// readBody reads at most maxBodyBytes of the request body
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(body), nil
}

// decodeJSON decodes the request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("request body must be valid JSON: %w", err)
	}
	return nil
}

// writeDecodeError answers a body that could not be read or parsed
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		_ = utils.WritePayloadTooLarge(w, tooLarge.Limit)
		return
	}
	if errors.Is(err, errEmptyBody) {
		_ = utils.WriteBadRequest(w, "Request body is required", nil)
		return
	}
	_ = utils.WriteBadRequest(w, "Invalid request body", nil)
}

type quantityBody struct {
	Quantity *int `json:"quantity"`
}

// decodeQuantity accepts a bare integer or {"quantity": n}. An empty body
// yields fallback, or errEmptyBody when fallback is zero.
func decodeQuantity(w http.ResponseWriter, r *http.Request, fallback int) (int, error) {
	body, err := readBody(w, r)
	if err != nil {
		return 0, err
	}
	if len(body) == 0 {
		if fallback == 0 {
			return 0, errEmptyBody
		}
		return fallback, nil
	}

	var n int
	if err := json.Unmarshal(body, &n); err == nil {
		return n, nil
	}

	var wrapped quantityBody
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return 0, fmt.Errorf("request body must be an integer: %w", err)
	}
	if wrapped.Quantity == nil {
		if fallback == 0 {
			return 0, errEmptyBody
		}
		return fallback, nil
	}
	return *wrapped.Quantity, nil
}

// pathID parses the {id} route parameter
func pathID(r *http.Request) (uuid.UUID, error) {
	return utils.ParseUUID(chi.URLParam(r, "id"), "id")
}

// requirePrincipal returns the request principal, answering 401 when there is none
func requirePrincipal(w http.ResponseWriter, r *http.Request) (*middleware.Principal, bool) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return nil, false
	}
	return principal, true
}
