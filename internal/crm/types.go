package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Params are the parameters of a single API call
type Params map[string]interface{}

// Record is a single entity record returned by the CRM
type Record map[string]interface{}

// Gateway invokes entity.action(params) on the CRM
type Gateway interface {
	Call(ctx context.Context, entity, action string, params Params) (*Result, error)
}

// Result is the decoded response of an API call
type Result struct {
	IsError int      `json:"is_error"`
	Count   int      `json:"count"`
	ID      int      `json:"id"`
	Values  []Record `json:"values"`
}

// UnmarshalJSON accepts both sequential (array) and keyed (object) values
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		IsError interface{}     `json:"is_error"`
		Count   interface{}     `json:"count"`
		ID      interface{}     `json:"id"`
		Values  json.RawMessage `json:"values"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	r.IsError = ToInt(raw.IsError)
	r.Count = ToInt(raw.Count)
	r.ID = ToInt(raw.ID)
	r.Values = nil

	trimmed := bytes.TrimSpace(raw.Values)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if trimmed[0] == '[' {
		var list []Record
		d := json.NewDecoder(bytes.NewReader(trimmed))
		d.UseNumber()
		if err := d.Decode(&list); err != nil {
			return fmt.Errorf("failed to decode values: %v", err)
		}
		r.Values = list
		return nil
	}
	var keyed map[string]Record
	d := json.NewDecoder(bytes.NewReader(trimmed))
	d.UseNumber()
	if err := d.Decode(&keyed); err != nil {
		return fmt.Errorf("failed to decode values: %v", err)
	}
	ids := make([]int, 0, len(keyed))
	byID := make(map[int]Record, len(keyed))
	for k, rec := range keyed {
		id, _ := strconv.Atoi(k)
		ids = append(ids, id)
		byID[id] = rec
	}
	sort.Ints(ids)
	for _, id := range ids {
		r.Values = append(r.Values, byID[id])
	}
	return nil
}

// First returns the first record of the result, or nil
func (r *Result) First() Record {
	if r == nil || len(r.Values) == 0 {
		return nil
	}
	return r.Values[0]
}

// ID returns the record id
func (r Record) ID() int {
	return ToInt(r["id"])
}

// ContactID returns the id of a Contact record, which some API actions
// report as contact_id only
func (r Record) ContactID() int {
	if id := r.ID(); id != 0 {
		return id
	}
	return ToInt(r["contact_id"])
}

// Int returns a field as an int, 0 when absent or not numeric
func (r Record) Int(key string) int {
	return ToInt(r[key])
}

// String returns a field as a string
func (r Record) String(key string) string {
	return ToString(r[key])
}

// Strings returns a multi-valued field as a string slice. A scalar string
// yields a one-element slice unless it is empty.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := ToString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		s := ToString(v)
		if s == "" {
			return nil
		}
		return []string{s}
	}
}

// ToInt converts the loosely typed ids returned by the CRM
func ToInt(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return 0
			}
			return int(f)
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// ToString converts a scalar value to its string form
func ToString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	}
	return fmt.Sprintf("%v", v)
}
