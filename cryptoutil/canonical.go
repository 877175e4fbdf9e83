package cryptoutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/MK2112/lusby/internal/errkind"
)

// CanonicalJSON serializes value to the unique byte string a signer and a
// verifier both hash: object keys sorted lexicographically, no
// insignificant whitespace, numbers in their shortest round-trip form,
// strings minimally escaped.
//
// No canonical-JSON library exists anywhere in the retrieved corpus, so this
// walks the generic encoding/json tree by hand rather than reaching for a
// struct-tag-ordered Marshal (see DESIGN.md).
func CanonicalJSON(value interface{}) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errkind.Wrap(errkind.Serialization, "cryptoutil: marshal", err)
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, errkind.Wrap(errkind.Serialization, "cryptoutil: decode for canonicalization", err)
	}
	buf := make([]byte, 0, len(raw))
	buf, err = appendCanonical(buf, generic)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func appendCanonical(buf []byte, v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if t {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case json.Number:
		return append(buf, canonicalNumber(t)...), nil
	case string:
		encoded, err := json.Marshal(t)
		if err != nil {
			return nil, errkind.Wrap(errkind.Serialization, "cryptoutil: marshal string", err)
		}
		return append(buf, encoded...), nil
	case []interface{}:
		buf = append(buf, '[')
		for i, elem := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			var err error
			buf, err = appendCanonical(buf, elem)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return nil, errkind.Wrap(errkind.Serialization, "cryptoutil: marshal key", err)
			}
			buf = append(buf, encodedKey...)
			buf = append(buf, ':')
			buf, err = appendCanonical(buf, t[k])
			if err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	default:
		return nil, errkind.New(errkind.Serialization, fmt.Sprintf("cryptoutil: value of type %T is not representable", v))
	}
}

// canonicalNumber re-renders a json.Number in its shortest round-trip form:
// integers with no trailing ".0", floats without a superfluous exponent.
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
