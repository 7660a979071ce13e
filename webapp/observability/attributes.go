// Package observability exposes the service's metrics over prometheus.
package observability

import (
	"fmt"
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOutcome   = "outcome"
	attrIndicator = "indicator"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

// paths carry ids in the query string only, so the path itself is low cardinality
func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, path)
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func indicatorAttr(indicator string) attribute.KeyValue {
	return attribute.String(attrIndicator, indicator)
}
