package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Entity configuration keys inside a processor config
const (
	EntityContact  = "civicrm_contact"
	EntityAddress  = "civicrm_address"
	EntityPhone    = "civicrm_phone"
	EntityEmail    = "civicrm_email"
	EntityWebsite  = "civicrm_website"
	EntityIm       = "civicrm_im"
	EntityNote     = "civicrm_note"
	EntityGroup    = "civicrm_group"
	EntityTag      = "civicrm_tag"
	EntityActivity = "civicrm_activity"
)

// Secondary entity switches found in enabled_entities
const (
	ProcessAddress = "process_address"
	ProcessPhone   = "process_phone"
	ProcessEmail   = "process_email"
	ProcessWebsite = "process_website"
	ProcessIm      = "process_im"
	ProcessNote    = "process_note"
	ProcessGroup   = "process_group"
	ProcessTag     = "process_tag"
)

// EntityConfig maps a CRM field name to a form field reference or literal
type EntityConfig map[string]string

// ProcessorConfig is the admin-authored configuration of one processor.
// Nested objects become entity mapping tables, scalars become settings and
// enabled_entities keeps the order in which the JSON declared it.
type ProcessorConfig struct {
	Settings        map[string]string
	Entities        map[string]EntityConfig
	EnabledEntities []string
	Transforms      map[string]map[string]string
}

// NewProcessorConfig creates an empty processor configuration
func NewProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Settings:   make(map[string]string),
		Entities:   make(map[string]EntityConfig),
		Transforms: make(map[string]map[string]string),
	}
}

// Setting returns a top-level scalar setting
func (c *ProcessorConfig) Setting(key string) string {
	return c.Settings[key]
}

// Flag reports whether a top-level checkbox setting is switched on
func (c *ProcessorConfig) Flag(key string) bool {
	v, ok := c.Settings[key]
	return ok && truthy(v)
}

// Entity returns the mapping table for an entity key; never nil
func (c *ProcessorConfig) Entity(key string) EntityConfig {
	if e, ok := c.Entities[key]; ok {
		return e
	}
	return EntityConfig{}
}

// Enabled reports whether the named secondary entity is switched on
func (c *ProcessorConfig) Enabled(name string) bool {
	for _, e := range c.EnabledEntities {
		if e == name {
			return true
		}
	}
	return false
}

// Transform returns the transform expression for an entity field, if any
func (c *ProcessorConfig) Transform(entity, field string) string {
	if c.Transforms == nil {
		return ""
	}
	return c.Transforms[entity][field]
}

// ContactLink returns the processor's contact link number
func (c *ProcessorConfig) ContactLink() string { return c.Settings["contact_link"] }

// AutoPop reports whether the form is pre-filled from the logged-in contact
func (c *ProcessorConfig) AutoPop() bool { return c.Flag("auto_pop") }

// AutoPopByRelationship reports whether the form is pre-filled from a
// contact related to the logged-in user
func (c *ProcessorConfig) AutoPopByRelationship() bool { return c.Flag("auto_pop_by_relationship") }

// RelationshipType returns the relationship type used for relationship auto-pop
func (c *ProcessorConfig) RelationshipType() string {
	return c.Settings["auto_populate_relationship_type"]
}

// PreventUpdate reports whether a deduped match must abort the submission
func (c *ProcessorConfig) PreventUpdate() bool { return c.Flag("prevent_update") }

// UnmarshalJSON decodes the loosely typed config object produced by the
// form builder's admin UI.
func (c *ProcessorConfig) UnmarshalJSON(data []byte) error {
	*c = NewProcessorConfig()

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	keys, err := readObjectKeys(dec)
	if err != nil {
		return fmt.Errorf("failed to decode processor config: %v", err)
	}

	for _, kv := range keys {
		switch kv.key {
		case "enabled_entities":
			enabled, err := decodeEnabled(kv.raw)
			if err != nil {
				return fmt.Errorf("failed to decode enabled_entities: %v", err)
			}
			c.EnabledEntities = enabled
		case "transforms":
			if err := json.Unmarshal(kv.raw, &c.Transforms); err != nil {
				return fmt.Errorf("failed to decode transforms: %v", err)
			}
		default:
			trimmed := bytes.TrimSpace(kv.raw)
			if len(trimmed) > 0 && trimmed[0] == '{' {
				var raw map[string]interface{}
				d := json.NewDecoder(bytes.NewReader(trimmed))
				d.UseNumber()
				if err := d.Decode(&raw); err != nil {
					return fmt.Errorf("failed to decode %s: %v", kv.key, err)
				}
				entity := make(EntityConfig, len(raw))
				for k, v := range raw {
					entity[k] = scalarString(v)
				}
				c.Entities[kv.key] = entity
				continue
			}
			var v interface{}
			d := json.NewDecoder(bytes.NewReader(trimmed))
			d.UseNumber()
			if err := d.Decode(&v); err != nil {
				return fmt.Errorf("failed to decode %s: %v", kv.key, err)
			}
			c.Settings[kv.key] = scalarString(v)
		}
	}
	return nil
}

// MarshalJSON writes the config back in the shape it was read in,
// preserving the order of enabled_entities.
func (c ProcessorConfig) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	for _, k := range sortedKeys(c.Settings) {
		v, err := json.Marshal(c.Settings[k])
		if err != nil {
			return nil, err
		}
		write(k, v)
	}
	entityKeys := make([]string, 0, len(c.Entities))
	for k := range c.Entities {
		entityKeys = append(entityKeys, k)
	}
	sort.Strings(entityKeys)
	for _, k := range entityKeys {
		v, err := json.Marshal(c.Entities[k])
		if err != nil {
			return nil, err
		}
		write(k, v)
	}
	if len(c.EnabledEntities) > 0 {
		var eb bytes.Buffer
		eb.WriteByte('{')
		for i, e := range c.EnabledEntities {
			if i > 0 {
				eb.WriteByte(',')
			}
			k, _ := json.Marshal(e)
			eb.Write(k)
			eb.WriteString(`:"1"`)
		}
		eb.WriteByte('}')
		write("enabled_entities", eb.Bytes())
	}
	if len(c.Transforms) > 0 {
		v, err := json.Marshal(c.Transforms)
		if err != nil {
			return nil, err
		}
		write("transforms", v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type rawKV struct {
	key string
	raw json.RawMessage
}

// readObjectKeys reads a JSON object keeping the key order
func readObjectKeys(dec *json.Decoder) ([]rawKV, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var out []rawKV
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, rawKV{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeEnabled accepts either {"process_address": 1, ...} or ["process_address", ...]
func decodeEnabled(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []string
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	keys, err := readObjectKeys(dec)
	if err != nil {
		return nil, err
	}
	var enabled []string
	for _, kv := range keys {
		var v interface{}
		d := json.NewDecoder(bytes.NewReader(kv.raw))
		d.UseNumber()
		if err := d.Decode(&v); err != nil {
			return nil, err
		}
		if truthy(scalarString(v)) {
			enabled = append(enabled, kv.key)
		}
	}
	return enabled, nil
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
