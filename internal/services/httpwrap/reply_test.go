package httpwrap

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/ocmerr"
)

func TestWriteError_StatusPerKind(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{ocmerr.MissingArguments("name"), http.StatusBadRequest, "MISSING_ARGUMENTS"},
		{ocmerr.New(ocmerr.KindUnsupportedShareType, "x"), http.StatusNotImplemented, "SHARE_TYPE_NOT_SUPPORTED"},
		{ocmerr.New(ocmerr.KindProviderNotFound, "x"), http.StatusNotImplemented, "PROVIDER_NOT_FOUND"},
		{ocmerr.Rejected("no"), http.StatusBadRequest, "PROVIDER_REJECTED"},
		{ocmerr.New(ocmerr.KindInvalidToken, "x"), http.StatusBadRequest, "TOKEN_INVALID"},
		{ocmerr.New(ocmerr.KindUntrustedServer, "x"), http.StatusForbidden, "UNTRUSTED_SERVER"},
		{ocmerr.New(ocmerr.KindAlreadyAccepted, "x"), http.StatusConflict, "INVITE_ALREADY_ACCEPTED"},
		{ocmerr.New(ocmerr.KindDeliveryFailed, "x"), http.StatusBadGateway, "DELIVERY_FAILED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), nil, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Message != tt.wantCode {
				t.Errorf("message = %q, want %q", body.Message, tt.wantCode)
			}
		})
	}
}

func TestWriteError_ValidationErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), nil, ocmerr.MissingArguments("shareWith", "protocol"))

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []ValidationError{{Name: "shareWith", Message: "REQUIRED"}, {Name: "protocol", Message: "REQUIRED"}}
	if !reflect.DeepEqual(body.ValidationErrors, want) {
		t.Errorf("validationErrors = %+v, want %+v", body.ValidationErrors, want)
	}
}

func TestDecodeJSON(t *testing.T) {
	var v map[string]any
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
	if err := DecodeJSON(r, &v); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	if err := DecodeJSON(r, &v); !errors.Is(err, ocmerr.ErrMissingArguments) {
		t.Errorf("malformed body: expected MissingArguments, got %v", err)
	}

	big := `{"a":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	if err := DecodeJSON(r, &v); !errors.Is(err, ocmerr.ErrMissingArguments) {
		t.Errorf("oversized body: expected MissingArguments, got %v", err)
	}
}
