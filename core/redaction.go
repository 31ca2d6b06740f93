package core

import "strings"

const RedactedValue = "[REDACTED]"

func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

// RedactLogFields redacts secrets and masks phone numbers before fields reach
// a logger.
func RedactLogFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	out := redactSensitiveMap(fields)
	for key, value := range out {
		if !isPhoneKey(key) {
			continue
		}
		if text, ok := value.(string); ok {
			out[key] = MaskMSISDN(text)
		}
	}
	return out
}

// MaskMSISDN keeps the last three digits of a phone number: 0551234567 -> *******567.
func MaskMSISDN(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 3 {
		return value
	}
	return strings.Repeat("*", len(value)-3) + value[len(value)-3:]
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"client_secret",
		"signature",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isPhoneKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.Contains(key, "number") || strings.Contains(key, "phone") || key == "recipient"
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "provider_id",
		"reference",
		"action",
		"idempotency_key",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
