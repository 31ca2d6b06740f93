package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payhooks/core"
	"github.com/shopspring/decimal"
)

const DefaultMaxBodyBytes int64 = 1 << 20

type WebhookHandler interface {
	HandleWebhook(ctx context.Context, req core.InboundRequest) (core.WebhookResult, error)
}

type Checkout interface {
	InitializePayment(ctx context.Context, req core.InitializePaymentRequest) (core.InitializePaymentResult, error)
	VerifyPayment(ctx context.Context, req core.VerifyPaymentRequest) (core.VerifyPaymentResult, error)
	ListFulfillments(ctx context.Context, providerID string, reference string) ([]core.FulfillmentRecord, error)
}

type handlers struct {
	webhooks     WebhookHandler
	checkout     Checkout
	providerID   string
	maxBodyBytes int64
}

type initializePaymentBody struct {
	Amount          json.Number `json:"amount" binding:"required"`
	BuyerNumber     string      `json:"buyerNumber" binding:"required"`
	RecipientNumber string      `json:"recipientNumber" binding:"required"`
	Plan            string      `json:"plan" binding:"required"`
	Network         string      `json:"network"`
	PlanName        string      `json:"planName"`
	Email           string      `json:"email"`
}

type planDetailsBody struct {
	Name  string `json:"name"`
	Price any    `json:"price"`
}

// verifyPaymentBody also accepts the field names older checkout pages post:
// recipientPhoneNumber, and the snake_case plan_details shape.
type verifyPaymentBody struct {
	Reference       string          `json:"reference" binding:"required"`
	PlanDetails     planDetailsBody `json:"planDetails"`
	RecipientNumber string          `json:"recipientNumber"`
	BuyerNumber     string          `json:"buyerNumber"`
	PaymentMethod   string          `json:"paymentMethod"`

	LegacyPlanDetails     planDetailsBody `json:"plan_details"`
	LegacyRecipientPhone  string          `json:"recipientPhoneNumber"`
	LegacyRecipientNumber string          `json:"recipient_number"`
	LegacyBuyerNumber     string          `json:"buyer_number"`
	LegacyPaymentMethod   string          `json:"payment_method"`
}

func (b verifyPaymentBody) request() core.VerifyPaymentRequest {
	plan := b.PlanDetails
	if strings.TrimSpace(plan.Name) == "" && plan.Price == nil {
		plan = b.LegacyPlanDetails
	}
	return core.VerifyPaymentRequest{
		Reference:       strings.TrimSpace(b.Reference),
		PlanName:        strings.TrimSpace(plan.Name),
		PlanPrice:       priceString(plan.Price),
		RecipientNumber: firstNonEmpty(b.RecipientNumber, b.LegacyRecipientPhone, b.LegacyRecipientNumber),
		BuyerNumber:     firstNonEmpty(b.BuyerNumber, b.LegacyBuyerNumber),
		PaymentMethod:   firstNonEmpty(b.PaymentMethod, b.LegacyPaymentMethod),
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type fulfillmentView struct {
	ID          string  `json:"id"`
	ProviderID  string  `json:"provider_id"`
	Reference   string  `json:"reference"`
	Action      string  `json:"action"`
	Status      string  `json:"status"`
	Attempt     int     `json:"attempt"`
	AttemptedAt string  `json:"attempted_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// paystackWebhook reads the raw body before anything else; the signature is
// computed over these exact bytes.
func (h *handlers) paystackWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "webhook body exceeds size limit").
				WithCode(http.StatusRequestEntityTooLarge).
				WithTextCode(core.ErrorBadInput))
			return
		}
		writeError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "webhook body could not be read").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorBadInput))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	result, err := h.webhooks.HandleWebhook(c.Request.Context(), core.InboundRequest{
		ProviderID: h.providerID,
		Headers:    headers,
		Body:       body,
		Metadata:   map[string]any{"request_id": requestIDFrom(c)},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"received":  result.Accepted,
		"outcome":   string(result.Outcome),
		"reference": result.Reference,
	})
}

func (h *handlers) initializePayment(c *gin.Context) {
	var body initializePaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, bindingError(err))
		return
	}
	result, err := h.checkout.InitializePayment(c.Request.Context(), core.InitializePaymentRequest{
		AmountMajor:     body.Amount.String(),
		BuyerNumber:     body.BuyerNumber,
		RecipientNumber: body.RecipientNumber,
		Plan:            body.Plan,
		PlanName:        body.PlanName,
		Network:         body.Network,
		Email:           body.Email,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authorization_url": result.AuthorizationURL,
		"access_code":       result.AccessCode,
		"reference":         result.Reference,
	})
}

func (h *handlers) verifyPayment(c *gin.Context) {
	var body verifyPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, bindingError(err))
		return
	}
	result, err := h.checkout.VerifyPayment(c.Request.Context(), body.request())
	if err != nil {
		writeError(c, err)
		return
	}
	response := gin.H{
		"status":    "success",
		"reference": result.Reference,
		"amount":    core.FormatMinorUnits(result.AmountMinor),
		"currency":  result.Currency,
		"notified":  result.Notified,
		"message":   "Payment verified",
	}
	if result.NotifyError != "" {
		response["message"] = "Payment verified; order forward failed"
	}
	c.JSON(http.StatusOK, response)
}

func (h *handlers) listFulfillments(c *gin.Context) {
	records, err := h.checkout.ListFulfillments(c.Request.Context(), h.providerID, c.Param("reference"))
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]fulfillmentView, 0, len(records))
	for _, record := range records {
		view := fulfillmentView{
			ID:          record.ID,
			ProviderID:  record.ProviderID,
			Reference:   record.Reference,
			Action:      string(record.Action),
			Status:      string(record.Status),
			Attempt:     record.Attempt,
			AttemptedAt: record.AttemptedAt.UTC().Format(time.RFC3339),
			Error:       record.ErrorDetail,
		}
		if record.CompletedAt != nil {
			completed := record.CompletedAt.UTC().Format(time.RFC3339)
			view.CompletedAt = &completed
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"reference": strings.TrimSpace(c.Param("reference")), "fulfillments": views})
}

func priceString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return decimal.NewFromFloat(typed).StringFixed(2)
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}
