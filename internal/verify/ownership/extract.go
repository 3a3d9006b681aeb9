package ownership

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vietddude/path402/internal/core/domain"
)

// field describes how a claimed value is named and compared in discovery records.
type field struct {
	keys     []string
	equal    func(candidate, want string) bool
	contains func(record, want string) bool
}

var handleField = field{
	keys: []string{"handle", "issuer", "issuer_handle", "owner", "holder"},
	equal: func(candidate, want string) bool {
		return domain.NormalizeHandle(candidate) == want
	},
	contains: func(record, want string) bool {
		return strings.Contains(strings.ToLower(record), want)
	},
}

var addressField = field{
	keys: []string{"address", "issuer_address", "owner_address", "payment_address", "settlement_address"},
	equal: func(candidate, want string) bool {
		return strings.TrimSpace(candidate) == want
	},
	contains: strings.Contains,
}

// txtFormat matches a claimed value inside one TXT string.
type txtFormat struct {
	name  string
	match func(record, want string, f field) bool
}

// txtFormats are tried in order; the first to match is reported.
var txtFormats = []txtFormat{
	{name: "bare", match: matchBare},
	{name: "key=value", match: matchSeparated("=")},
	{name: "key:value", match: matchSeparated(":")},
	{name: "substring", match: matchSubstring},
}

func matchBare(record, want string, f field) bool {
	return f.equal(strings.TrimSpace(record), want)
}

func matchSeparated(sep string) func(string, string, field) bool {
	return func(record, want string, f field) bool {
		for _, part := range txtFields(record) {
			k, v, ok := strings.Cut(part, sep)
			if ok && hasKey(f.keys, k) && f.equal(v, want) {
				return true
			}
		}
		return false
	}
}

func matchSubstring(record, want string, f field) bool {
	return want != "" && f.contains(record, want)
}

// matchTXT returns the name of the first format under which any record names want.
func matchTXT(records []string, want string, f field) (string, bool) {
	if want == "" {
		return "", false
	}
	for _, format := range txtFormats {
		for _, r := range records {
			if format.match(r, want, f) {
				return format.name, true
			}
		}
	}
	return "", false
}

func txtFields(record string) []string {
	return strings.FieldsFunc(record, func(r rune) bool {
		return r == ';' || r == ',' || r == ' ' || r == '\t'
	})
}

func hasKey(keys []string, k string) bool {
	k = strings.ToLower(strings.TrimSpace(k))
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

// jsonExtractor yields candidate values from a well-known document.
type jsonExtractor struct {
	name   string
	values func(doc gjson.Result) []string
}

func jsonField(path string) jsonExtractor {
	return jsonExtractor{name: path, values: func(doc gjson.Result) []string {
		v := doc.Get(path)
		if v.Type != gjson.String {
			return nil
		}
		return []string{v.String()}
	}}
}

func jsonArray(path string) jsonExtractor {
	return jsonExtractor{name: path + "[]", values: func(doc gjson.Result) []string {
		var out []string
		for _, v := range doc.Get(path).Array() {
			if v.Type == gjson.String {
				out = append(out, v.String())
			}
		}
		return out
	}}
}

// Extractors are tried in order; the first to yield a match is reported.
var (
	handleExtractors = []jsonExtractor{
		jsonField("issuer"),
		jsonField("issuer_handle"),
		jsonField("owner"),
		jsonField("handle"),
		jsonArray("handles"),
	}
	addressExtractors = []jsonExtractor{
		jsonField("issuer_address"),
		jsonField("address"),
		jsonField("owner_address"),
		jsonField("payment_address"),
		jsonField("settlement_address"),
	}
)

func matchJSON(doc gjson.Result, extractors []jsonExtractor, want string, f field) (string, bool) {
	if want == "" {
		return "", false
	}
	for _, e := range extractors {
		for _, v := range e.values(doc) {
			if f.equal(v, want) {
				return e.name, true
			}
		}
	}
	return "", false
}

// Triple is a published pointer to an on-chain attestation.
type Triple struct {
	TxID      string `json:"tx_id"`
	Signature string `json:"signature,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (t *Triple) usable() bool {
	return t != nil && t.TxID != ""
}

var (
	txIDKeys      = []string{"domain_signature_tx_id", "signature_tx_id", "tx_id", "txid"}
	signatureKeys = []string{"domain_signature", "signature"}
	messageKeys   = []string{"domain_message", "message"}
)

// tripleFromTXT collects key=value proof fields across all TXT strings.
// Values may contain spaces, so records are only split on ';'.
func tripleFromTXT(records []string) *Triple {
	values := make(map[string]string)
	for _, r := range records {
		for _, part := range strings.Split(r, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok {
				continue
			}
			k = strings.ToLower(strings.TrimSpace(k))
			if _, seen := values[k]; !seen {
				values[k] = strings.TrimSpace(v)
			}
		}
	}
	t := &Triple{
		TxID:      firstValue(values, txIDKeys),
		Signature: firstValue(values, signatureKeys),
		Message:   firstValue(values, messageKeys),
	}
	if t.TxID == "" {
		return nil
	}
	return t
}

func tripleFromJSON(doc gjson.Result) *Triple {
	get := func(keys []string) string {
		for _, k := range keys {
			if v := doc.Get(k); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
		return ""
	}
	t := &Triple{
		TxID:      get(txIDKeys),
		Signature: get(signatureKeys),
		Message:   get(messageKeys),
	}
	if t.TxID == "" {
		return nil
	}
	return t
}

func firstValue(values map[string]string, keys []string) string {
	for _, k := range keys {
		if v := values[k]; v != "" {
			return v
		}
	}
	return ""
}
