package telemetry

import "strings"

// RedactionMarker replaces sensitive argument values before persistence.
const RedactionMarker = "***"

// sensitiveKeys are matched case-insensitively against argument names.
// Values under matching keys never reach either sink.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"passwd":        {},
	"secret":        {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"api_key":       {},
	"apikey":        {},
	"credential":    {},
}

// RedactArgs returns a copy of args with sensitive values replaced by the
// redaction marker. Nested maps are redacted recursively; the input is
// never modified.
func RedactArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}

	redacted := make(map[string]interface{}, len(args))
	for key, value := range args {
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			redacted[key] = RedactionMarker
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			redacted[key] = RedactArgs(nested)
			continue
		}
		redacted[key] = value
	}
	return redacted
}
