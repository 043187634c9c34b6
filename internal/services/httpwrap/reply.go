package httpwrap

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
	"github.com/MahdiBaghbani/ocmbridge/internal/platform/logutil"
)

// MaxBodyBytes bounds inbound JSON request bodies.
const MaxBodyBytes = 1 << 20

// ValidationError names one missing or invalid request field.
type ValidationError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ErrorResponse is the OCM error body.
type ErrorResponse struct {
	Message          string            `json:"message"`
	ValidationErrors []ValidationError `json:"validationErrors,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind ocmerr.Kind) int {
	switch kind {
	case ocmerr.KindMissingArguments, ocmerr.KindProviderRejected, ocmerr.KindInvalidToken:
		return http.StatusBadRequest
	case ocmerr.KindUnsupportedShareType, ocmerr.KindProviderNotFound:
		return http.StatusNotImplemented
	case ocmerr.KindUntrustedServer:
		return http.StatusForbidden
	case ocmerr.KindAlreadyAccepted:
		return http.StatusConflict
	case ocmerr.KindDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an OCM error body. The message is the stable
// kind code; details are logged, not returned.
func WriteError(w http.ResponseWriter, r *http.Request, fallback *slog.Logger, err error) {
	log := logutil.FromContext(r.Context(), fallback)
	kind := ocmerr.KindOf(err)
	status := StatusFor(kind)

	resp := ErrorResponse{Message: kind.String()}
	var oe *ocmerr.Error
	if errors.As(err, &oe) && kind == ocmerr.KindMissingArguments {
		for _, f := range oe.Fields {
			resp.ValidationErrors = append(resp.ValidationErrors, ValidationError{Name: f, Message: "REQUIRED"})
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Info("request rejected", "status", status, "error", err)
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON reads a bounded JSON body into v. A malformed body is reported
// as MissingArguments for the whole body.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return ocmerr.Wrap(ocmerr.KindInternal, "read body", err)
	}
	if len(body) > MaxBodyBytes {
		return &ocmerr.Error{Kind: ocmerr.KindMissingArguments, Message: "request body too large", Fields: []string{"body"}}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ocmerr.Error{
			Kind:    ocmerr.KindMissingArguments,
			Message: "invalid JSON body",
			Fields:  []string{"body"},
			Cause:   err,
		}
	}
	return nil
}
