package core

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	MetadataRecipientNumber = "recipient_number"
	MetadataSelectedPlan    = "selected_plan"
	MetadataSelectedNetwork = "selected_network"
	MetadataBuyerNumber     = "buyer_number"
	MetadataPlanName        = "plan_name"
)

// metadataAliases lists the keys older checkout pages used for each field.
var metadataAliases = map[string][]string{
	MetadataRecipientNumber: {"recipientNumber", "recipient_phone", "recipientPhoneNumber"},
	MetadataSelectedPlan:    {"selectedPlan", "selectedPlanName", "data_plan_name", "plan"},
	MetadataSelectedNetwork: {"selectedNetwork", "network"},
	MetadataBuyerNumber:     {"buyerNumber", "buyer_phone"},
	MetadataPlanName:        {"planName", "plan-name"},
}

// Order is the typed view of the metadata attached at checkout.
type Order struct {
	RecipientNumber string `metadata:"recipient_number" validate:"required"`
	Plan            string `metadata:"selected_plan" validate:"required"`
	Network         string `metadata:"selected_network"`
	BuyerNumber     string `metadata:"buyer_number"`
	PlanName        string `metadata:"plan_name"`
}

func (o Order) DisplayPlan() string {
	if strings.TrimSpace(o.PlanName) != "" {
		return o.PlanName
	}
	return o.Plan
}

func (o Order) Metadata() map[string]string {
	out := map[string]string{
		MetadataRecipientNumber: o.RecipientNumber,
		MetadataSelectedPlan:    o.Plan,
	}
	if o.Network != "" {
		out[MetadataSelectedNetwork] = o.Network
	}
	if o.BuyerNumber != "" {
		out[MetadataBuyerNumber] = o.BuyerNumber
	}
	if o.PlanName != "" {
		out[MetadataPlanName] = o.PlanName
	}
	return out
}

type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "core: order metadata incomplete"
	}
	return fmt.Sprintf("core: order metadata missing required fields: %s", strings.Join(e.Fields, ", "))
}

var (
	orderValidatorOnce sync.Once
	orderValidator     *validator.Validate
)

func orderValidation() *validator.Validate {
	orderValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			if name := field.Tag.Get("metadata"); name != "" {
				return name
			}
			return field.Name
		})
		orderValidator = v
	})
	return orderValidator
}

// ParseOrder converts flat metadata into an Order. Missing required keys fail
// closed with a *MissingFieldsError; no partial Order is returned.
func ParseOrder(metadata map[string]string) (Order, error) {
	order := Order{
		RecipientNumber: lookupMetadata(metadata, MetadataRecipientNumber),
		Plan:            lookupMetadata(metadata, MetadataSelectedPlan),
		Network:         lookupMetadata(metadata, MetadataSelectedNetwork),
		BuyerNumber:     lookupMetadata(metadata, MetadataBuyerNumber),
		PlanName:        lookupMetadata(metadata, MetadataPlanName),
	}
	if err := orderValidation().Struct(order); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return Order{}, fmt.Errorf("core: validate order metadata: %w", err)
		}
		missing := make([]string, 0, len(validationErrs))
		for _, fieldErr := range validationErrs {
			missing = append(missing, fieldErr.Field())
		}
		sort.Strings(missing)
		return Order{}, &MissingFieldsError{Fields: missing}
	}
	return order, nil
}

func lookupMetadata(metadata map[string]string, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	if value := strings.TrimSpace(metadata[key]); value != "" {
		return value
	}
	for _, alias := range metadataAliases[key] {
		if value := strings.TrimSpace(metadata[alias]); value != "" {
			return value
		}
	}
	return ""
}
