package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/clanbank/internal/ledger"
	"github.com/Veraticus/clanbank/internal/model"
)

// Error codes returned in error envelopes.
const (
	CodeValidation   = "validation_error"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeStorageFull  = "storage_full"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal_error"
)

type successEnvelope struct {
	Data any `json:"data"`
}

type apiError struct {
	Details any    `json:"details,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// requestError is a client error found before the engine is called.
type requestError struct {
	details any
	message string
}

func (e *requestError) Error() string { return e.message }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func decodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return &requestError{message: "invalid request body", details: map[string]string{"error": err.Error()}}
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return &requestError{message: "validation failed", details: details}
	}
	return &requestError{message: "validation failed"}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "uuid":
		return "must be a UUID"
	}
	return "is invalid"
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Data: data})
}

// writeError maps ledger errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, payload := classifyError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: payload})
}

func classifyError(err error) (int, apiError) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, apiError{Code: CodeValidation, Message: reqErr.message, Details: reqErr.details}
	case errors.Is(err, ledger.ErrInvalidQuantity), errors.Is(err, ledger.ErrInvalidRequest):
		return http.StatusBadRequest, apiError{Code: CodeValidation, Message: err.Error()}
	case errors.Is(err, ledger.ErrStorageFull):
		return http.StatusConflict, apiError{Code: CodeStorageFull, Message: err.Error()}
	case errors.Is(err, ledger.ErrItemNotFound), errors.Is(err, ledger.ErrSelectionNotFound):
		return http.StatusNotFound, apiError{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, ledger.ErrInsufficientQuantity), errors.Is(err, model.ErrSelectionConsumed):
		return http.StatusConflict, apiError{Code: CodeConflict, Message: err.Error()}
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, apiError{Code: CodeUnavailable, Message: "ledger store unavailable, try again"}
	default:
		return http.StatusInternalServerError, apiError{Code: CodeInternal, Message: "unexpected error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
