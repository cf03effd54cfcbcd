package config

import (
	"encoding/json"
	"strings"

	"github.com/spf13/viper"
)

const redacted = "***REDACTED***"

var redactKeys = map[string]struct{}{
	"password":    {},
	"api_key":     {},
	"apikey":      {},
	"private_key": {},
	"secret":      {},
}

// Dump renders every setting of v as indented JSON with secrets masked.
func Dump(v *viper.Viper) (string, error) {
	b, err := json.MarshalIndent(redactValue(v.AllSettings()), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RedactJSON masks secret fields in a JSON document. Input that is not
// JSON is returned unchanged.
func RedactJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	b, err := json.Marshal(redactValue(v))
	if err != nil {
		return raw
	}
	return string(b)
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			if _, ok := redactKeys[strings.ToLower(k)]; ok {
				if s, isString := vv.(string); isString && s == "" {
					out[k] = s
					continue
				}
				out[k] = redacted
				continue
			}
			out[k] = redactValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = redactValue(t[i])
		}
		return out
	default:
		return v
	}
}
