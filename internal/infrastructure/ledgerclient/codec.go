package ledgerclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// The local convention is snake_case, the ledger's is camelCase. Every JSON
// object key is rewritten recursively on the way out and back, so callers on
// both sides of the wire only ever see their own convention.

// snakeToCamel rewrites all object keys of a decoded JSON value from
// snake_case to camelCase.
func snakeToCamel(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[camelKey(k)] = snakeToCamel(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = snakeToCamel(item)
		}
		return out
	default:
		return v
	}
}

// camelToSnake rewrites all object keys of a decoded JSON value from
// camelCase to snake_case.
func camelToSnake(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[snakeKey(k)] = camelToSnake(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = camelToSnake(item)
		}
		return out
	default:
		return v
	}
}

func camelKey(key string) string {
	parts := strings.Split(key, "_")
	if len(parts) == 1 {
		return key
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

func snakeKey(key string) string {
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// encodeParams marshals a snake_case parameter map into the ledger's
// camelCase JSON rendering.
func encodeParams(params map[string]any) ([]byte, error) {
	return json.Marshal(snakeToCamel(params))
}

// decodeBody unmarshals a ledger JSON body back into snake_case keys.
// An empty body decodes to nil.
func decodeBody(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	m, ok := camelToSnake(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected top-level JSON type %T", raw)
	}
	return m, nil
}

// queryString renders GET parameters as a URL query. Keys are passed through
// unmodified; key-case translation applies to JSON bodies only.
func queryString(params map[string]any) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, fmt.Sprint(v))
	}
	return values.Encode()
}

// encodePart renders one logical request as a self-contained application/http
// MIME body part. GET parameters become a query string; all other methods
// carry a JSON body.
func encodePart(method, path string, params map[string]any) ([]byte, error) {
	var body []byte
	if method == "GET" {
		if len(params) > 0 {
			path = path + "?" + queryString(params)
		}
	} else if params != nil {
		var err error
		body, err = encodeParams(params)
		if err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	buf.WriteString("Content-Type: application/http\r\n")
	buf.WriteString("Content-Transfer-Encoding: binary\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(method + " " + path + " HTTP/1.1\r\n")
	buf.WriteString("Content-Type: application/json\r\n")
	buf.WriteString("Accept: application/json\r\n")
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// errorMessage tries to extract a structured error message from a ledger
// response body. Absence of a parsable message is reported via ok, never as
// an error: unparsable bodies simply carry no structured message.
func errorMessage(body []byte) (string, bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", false
	}
	if nested, ok := raw["error"].(map[string]any); ok {
		if msg, ok := nested["message"].(string); ok && msg != "" {
			return msg, true
		}
	}
	if msg, ok := raw["message"].(string); ok && msg != "" {
		return msg, true
	}
	return "", false
}
