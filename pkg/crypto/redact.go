package crypto

import (
	"encoding/json"
	"strings"
)

const mask = "****"

// identifierKeys keep a last-4 hint when masked; secretKeys never do.
var (
	identifierKeys = map[string]struct{}{
		"documentnumber": {}, "number": {}, "nin": {}, "bvn": {}, "idnumber": {},
		"passportnumber": {}, "licensenumber": {}, "vin": {},
		"phonenumber": {}, "dateofbirth": {}, "dob": {},
	}
	secretKeys = map[string]struct{}{
		"password": {}, "secret": {}, "token": {}, "accesstoken": {}, "apikey": {},
		"authorization": {}, "signature": {}, "appid": {}, "privatekey": {},
		"image": {}, "selfie": {},
	}
)

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	return strings.ReplaceAll(k, "-", "")
}

// IsSensitiveKey reports whether values under k must never be logged or stored in clear.
func IsSensitiveKey(k string) bool {
	k = normalizeKey(k)
	if _, ok := identifierKeys[k]; ok {
		return true
	}
	_, ok := secretKeys[k]
	return ok
}

// Redact returns a copy of v with sensitive values masked. Maps and slices
// are walked recursively; structs are normalised through JSON first.
func Redact(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = maskValue(k, val)
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = maskValue(k, val)
				continue
			}
			out[k] = val
		}
		return out
	case string, bool, float64, float32, int, int64, int32, json.Number:
		return t
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return mask
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return mask
		}
		return Redact(generic)
	}
}

func maskValue(k string, v any) any {
	s, ok := v.(string)
	if !ok {
		return mask
	}
	if _, identifier := identifierKeys[normalizeKey(k)]; !identifier {
		return mask
	}
	return MaskIdentifier(s)
}

// RedactJSON redacts a raw JSON payload. Unparseable input is replaced.
func RedactJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return []byte(`{"_raw":"[unparseable]"}`)
	}
	out, err := json.Marshal(Redact(generic))
	if err != nil {
		return []byte(`{"_raw":"[unparseable]"}`)
	}
	return out
}
