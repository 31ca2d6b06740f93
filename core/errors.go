package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorSignatureInvalid  = "PAYHOOKS_SIGNATURE_INVALID"
	ErrorDuplicateEvent    = "PAYHOOKS_DUPLICATE_EVENT"
	ErrorMalformedEvent    = "PAYHOOKS_MALFORMED_EVENT"
	ErrorDownstreamFailed  = "PAYHOOKS_DOWNSTREAM_FAILED"
	ErrorBadInput          = "PAYHOOKS_BAD_INPUT"
	ErrorNotFound          = "PAYHOOKS_NOT_FOUND"
	ErrorPaymentNotSuccess = "PAYHOOKS_PAYMENT_NOT_SUCCESSFUL"
	ErrorUnavailable       = "PAYHOOKS_UNAVAILABLE"
	ErrorInternal          = "PAYHOOKS_INTERNAL_ERROR"
)

// ErrorClass is the webhook-facing failure taxonomy.
type ErrorClass string

const (
	ErrorClassNone           ErrorClass = ""
	ErrorClassAuthentication ErrorClass = "authentication_failure"
	ErrorClassDuplicate      ErrorClass = "duplicate_event"
	ErrorClassMalformed      ErrorClass = "malformed_event"
	ErrorClassDownstream     ErrorClass = "downstream_failure"
	ErrorClassInternal       ErrorClass = "internal_failure"
)

func NewSignatureError(source error, providerID string) *goerrors.Error {
	return wrapPayhooksError(source, goerrors.CategoryAuth, "signature verification failed", ErrorSignatureInvalid, http.StatusUnauthorized).
		WithMetadata(map[string]any{"provider_id": providerID})
}

func NewMalformedEventError(source error, providerID string, reference string) *goerrors.Error {
	metadata := map[string]any{
		"provider_id": providerID,
		"reference":   reference,
	}
	var missing *MissingFieldsError
	if errors.As(source, &missing) {
		metadata["missing_fields"] = append([]string(nil), missing.Fields...)
	}
	return wrapPayhooksError(source, goerrors.CategoryValidation, "malformed payment event", ErrorMalformedEvent, http.StatusOK).
		WithMetadata(metadata)
}

func NewDownstreamError(source error, action FulfillmentAction, reference string) *goerrors.Error {
	return wrapPayhooksError(source, goerrors.CategoryExternal, "fulfillment action failed", ErrorDownstreamFailed, http.StatusBadGateway).
		WithMetadata(map[string]any{"action": string(action), "reference": reference})
}

func NewInternalError(source error, message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "An unexpected error occurred"
	}
	return wrapPayhooksError(source, goerrors.CategoryInternal, message, ErrorInternal, http.StatusInternalServerError)
}

func NewBadInputError(source error) *goerrors.Error {
	message := "invalid input"
	if source != nil {
		message = source.Error()
	}
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput)
}

func wrapPayhooksError(
	source error,
	category goerrors.Category,
	message string,
	textCode string,
	code int,
) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, category).WithCode(code).WithTextCode(textCode)
	}
	return goerrors.Wrap(source, category, message).WithCode(code).WithTextCode(textCode)
}

// ClassifyError maps err onto the webhook taxonomy. Unknown errors are internal.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassNone
	}
	var missing *MissingFieldsError
	if errors.As(err, &missing) {
		return ErrorClassMalformed
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.TextCode {
		case ErrorSignatureInvalid:
			return ErrorClassAuthentication
		case ErrorDuplicateEvent:
			return ErrorClassDuplicate
		case ErrorMalformedEvent:
			return ErrorClassMalformed
		case ErrorDownstreamFailed:
			return ErrorClassDownstream
		}
		switch richErr.Category {
		case goerrors.CategoryAuth:
			return ErrorClassAuthentication
		case goerrors.CategoryExternal:
			return ErrorClassDownstream
		}
	}
	return ErrorClassInternal
}

// MapError converts any error into a go-errors envelope with an HTTP code and
// text code set.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	var missing *MissingFieldsError
	if errors.As(err, &missing) {
		return NewMalformedEventError(err, "", "")
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case errors.Is(err, ErrFulfillmentRecordNotFound), strings.Contains(msg, "not found"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ErrorNotFound))
	case errors.Is(err, ErrPaymentNotSuccessful):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorPaymentNotSuccess))
	case errors.Is(err, ErrInvalidFulfillmentAction),
		strings.Contains(msg, "required"),
		strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth:
		return ErrorSignatureInvalid
	case goerrors.CategoryExternal:
		return ErrorDownstreamFailed
	default:
		return ErrorInternal
	}
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
