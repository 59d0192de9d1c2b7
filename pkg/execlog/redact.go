package execlog

import (
	"net/http"
	"strings"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
)

const redactedValue = "[REDACTED]"

// RedactHeaders copies headers with deny-listed names replaced by a marker.
// The name is kept so the timeline still shows the header was sent.
func RedactHeaders(cfg config.RedactionConfig, headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if denied(cfg, name) {
			out[name] = redactedValue
			continue
		}
		out[name] = value
	}
	return out
}

// FlattenHeaders converts an http.Header to the single-value map the
// snapshots store, joining repeated values.
func FlattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// TruncateBody bounds a logged body at MaxBodyBytes.
func TruncateBody(cfg config.RedactionConfig, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if cfg.MaxBodyBytes > 0 && len(body) > cfg.MaxBodyBytes {
		return string(body[:cfg.MaxBodyBytes]) + "...[truncated]"
	}
	return string(body)
}

func denied(cfg config.RedactionConfig, name string) bool {
	lower := strings.ToLower(name)
	for _, deny := range cfg.DenyHeaders {
		if lower == deny {
			return true
		}
	}
	return false
}
