package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractContext restores trace context from an inbound carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// deniedAttributeKeys are attribute keys that may carry credentials or
// personal data and must never reach a span.
var deniedAttributeKeys = map[string]struct{}{
	"api_key":       {},
	"authorization": {},
	"email":         {},
	"password":      {},
	"phone":         {},
	"token":         {},
}

// SafeAttributes drops attributes whose keys are on the deny list.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0]
	for _, attr := range attrs {
		key := strings.ToLower(string(attr.Key))
		if _, denied := deniedAttributeKeys[key]; denied {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error safe to record on a span. Query strings and
// header values can leak credentials, so only the error type survives when
// the message looks like it carries a URL.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "://") || strings.Contains(msg, "api_key=") {
		return errors.New("redacted transport error")
	}
	return err
}
