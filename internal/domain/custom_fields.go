package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CustomField is one entry of a lead's residual attribute bag.
type CustomField struct {
	Key   string
	Value string
}

// CustomFields is an insertion-ordered string-to-string bag. Keys are unique;
// Set on an existing key replaces the value in place. It marshals to a JSON
// object with keys in insertion order.
type CustomFields struct {
	entries []CustomField
	index   map[string]int
}

// NewCustomFields builds a bag from alternating key/value pairs.
func NewCustomFields(kv ...string) CustomFields {
	var cf CustomFields
	for i := 0; i+1 < len(kv); i += 2 {
		cf.Set(kv[i], kv[i+1])
	}
	return cf
}

// Set stores value under key.
func (c *CustomFields) Set(key, value string) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, ok := c.index[key]; ok {
		c.entries[i].Value = value
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, CustomField{Key: key, Value: value})
}

// Get returns the value stored under key.
func (c CustomFields) Get(key string) (string, bool) {
	i, ok := c.index[key]
	if !ok {
		return "", false
	}
	return c.entries[i].Value, true
}

// Has reports whether key is present.
func (c CustomFields) Has(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Len returns the number of entries.
func (c CustomFields) Len() int { return len(c.entries) }

// Keys returns the keys in insertion order.
func (c CustomFields) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.Key
	}
	return keys
}

// Merge returns a new bag holding c's entries overlaid with incoming.
// Keys only in c keep their value; colliding keys take incoming's value;
// new keys are appended in incoming's order.
func (c CustomFields) Merge(incoming CustomFields) CustomFields {
	var out CustomFields
	for _, e := range c.entries {
		out.Set(e.Key, e.Value)
	}
	for _, e := range incoming.entries {
		out.Set(e.Key, e.Value)
	}
	return out
}

// MarshalJSON writes the bag as a JSON object in insertion order.
func (c CustomFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order. Non-string scalar
// values are kept as their JSON literal text; null becomes "".
func (c *CustomFields) UnmarshalJSON(data []byte) error {
	*c = CustomFields{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("custom fields: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		c.Set(key, scalarText(raw))
	}
	_, err = dec.Token()
	return err
}

// scalarText renders a raw JSON value as a plain string.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
