package models

import "strings"

// Processor types understood by the form runner
const (
	ProcessorTypeContact  = "civicrm_contact"
	ProcessorTypeActivity = "civicrm_activity"
)

// Form represents a form definition as supplied by the host form-runner.
// Processors are ordered; the first contact processor is authoritative for
// logged-in auto-population.
type Form struct {
	ID         string            `json:"ID"`
	Name       string            `json:"name,omitempty"`
	Fields     map[string]*Field `json:"fields"`
	Processors []*Processor      `json:"processors"`
}

// Field represents a single form field
type Field struct {
	ID     string                 `json:"ID"`
	Slug   string                 `json:"slug"`
	Type   string                 `json:"type,omitempty"`
	Label  string                 `json:"label,omitempty"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// Processor represents a processor attached to a form
type Processor struct {
	ID       string                 `json:"ID"`
	Type     string                 `json:"type"`
	Runtimes map[string]interface{} `json:"runtimes"`
	Config   ProcessorConfig        `json:"config"`
}

// HasRuntimes reports whether the host declared when the processor runs.
// Processors without runtimes are not pre-rendered.
func (p *Processor) HasRuntimes() bool {
	return p.Runtimes != nil
}

// Default returns the field's configured default value, or nil.
func (f *Field) Default() interface{} {
	if f.Config == nil {
		return nil
	}
	return f.Config["default"]
}

// HasDefault reports whether the field already carries a non-empty default.
func (f *Field) HasDefault() bool {
	return !IsEmpty(f.Default())
}

// SetDefault sets the field's default value
func (f *Field) SetDefault(value interface{}) {
	if f.Config == nil {
		f.Config = make(map[string]interface{})
	}
	f.Config["default"] = value
}

// FieldBySlug returns the field with the given slug, or nil
func (f *Form) FieldBySlug(slug string) *Field {
	for _, field := range f.Fields {
		if field.Slug == slug {
			return field
		}
	}
	return nil
}

// FieldByTag resolves a mapping value to a form field. The value may be a
// magic tag (%slug%), a bare slug or a field ID.
func (f *Form) FieldByTag(tag string) *Field {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.HasPrefix(tag, "{") {
		return nil
	}
	if field, ok := f.Fields[tag]; ok {
		return field
	}
	return f.FieldBySlug(StripMagicTag(tag))
}

// ProcessorsOfType returns the processors of the given type in form order
func (f *Form) ProcessorsOfType(typ string) []*Processor {
	var out []*Processor
	for _, p := range f.Processors {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

// FirstProcessorOfType returns the ID of the first processor of the given type,
// or "" when the form has none.
func (f *Form) FirstProcessorOfType(typ string) string {
	for _, p := range f.Processors {
		if p.Type == typ {
			return p.ID
		}
	}
	return ""
}

// Clone returns a deep copy of the form's fields; processors are shared since
// their configuration is read-only.
func (f *Form) Clone() *Form {
	clone := &Form{
		ID:         f.ID,
		Name:       f.Name,
		Fields:     make(map[string]*Field, len(f.Fields)),
		Processors: f.Processors,
	}
	for id, field := range f.Fields {
		fc := *field
		if field.Config != nil {
			fc.Config = make(map[string]interface{}, len(field.Config))
			for k, v := range field.Config {
				fc.Config[k] = v
			}
		}
		clone.Fields[id] = &fc
	}
	return clone
}

// StripMagicTag removes the %...% wrapper around a field slug
func StripMagicTag(tag string) string {
	return strings.ReplaceAll(strings.TrimSpace(tag), "%", "")
}

// IsEmpty mirrors the host's notion of an empty submitted value
func IsEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == "" || val == "0"
	case bool:
		return !val
	case int:
		return val == 0
	case int64:
		return val == 0
	case float64:
		return val == 0
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}
