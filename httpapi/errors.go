package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payhooks/core"
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorEnvelope struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeError renders err as a go-errors envelope. Internal failures never
// leak their message.
func writeError(c *gin.Context, err error) {
	rich := core.MapError(err)
	if rich == nil {
		rich = core.NewInternalError(nil, "")
	}
	_ = c.Error(err)

	status := rich.Code
	if status == 0 {
		status = core.HTTPStatus(rich.Category)
	}
	body := errorBody{
		Code:    rich.TextCode,
		Message: rich.Message,
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		body.Message = "An unexpected error occurred"
	}
	if validation := rich.AllValidationErrors(); len(validation) > 0 {
		body.Fields = map[string]string{}
		for _, field := range validation {
			body.Fields[field.Field] = field.Message
		}
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: body, RequestID: requestIDFrom(c)})
}

// bindingError converts gin/validator binding failures into a validation
// envelope keyed by JSON field name.
func bindingError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "request body is not valid JSON").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorBadInput)
	}
	fields := make([]goerrors.FieldError, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fields = append(fields, goerrors.FieldError{
			Field:   lowerFirst(fieldErr.Field()),
			Message: validationMessage(fieldErr),
		})
	}
	return goerrors.NewValidation("request validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}

func validationMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "is required"
	default:
		return "failed " + fieldErr.Tag() + " validation"
	}
}

func lowerFirst(value string) string {
	if value == "" {
		return value
	}
	return strings.ToLower(value[:1]) + value[1:]
}
