package decoder

import (
	"bytes"
	"encoding/json"
)

// orderedObject is a JSON object that marshals its fields in insertion
// order, since map[string]interface{} would otherwise reorder a struct's
// fields alphabetically and lose the ABI's declared order.
type orderedObject struct {
	keys   []string
	values []interface{}
}

func newOrderedObject(n int) *orderedObject {
	return &orderedObject{keys: make([]string, 0, n), values: make([]interface{}, 0, n)}
}

func (o *orderedObject) set(key string, value interface{}) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
}

// MarshalJSON implements json.Marshaler.
func (o *orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// asMap flattens an orderedObject to a plain map for callers (e.g. the
// top-level IndexedEvent.DecodedData) that track field order separately.
func (o *orderedObject) asMap() map[string]interface{} {
	m := make(map[string]interface{}, len(o.keys))
	for i, k := range o.keys {
		m[k] = o.values[i]
	}
	return m
}
