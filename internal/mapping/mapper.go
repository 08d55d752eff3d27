// Package mapping translates submitted form values into CRM parameters
// according to a processor's field mapping, and CRM records back into form
// field defaults.
package mapping

import (
	"fmt"
	"sort"
	"strings"

	"cf-civicrm/internal/models"

	"github.com/sirupsen/logrus"
)

// Transformer applies a configured value transform
type Transformer interface {
	Transform(expression string, value interface{}) (interface{}, error)
}

// Mapper maps between form fields and CRM entity fields
type Mapper struct {
	transformer Transformer
	log         logrus.FieldLogger
}

// New creates a mapper. transformer may be nil when transforms are not used.
func New(transformer Transformer, log logrus.FieldLogger) *Mapper {
	return &Mapper{transformer: transformer, log: log}
}

// reservedKeys configure the processor rather than map a CRM field. They are
// only mapped when they reference a form field.
var reservedKeys = map[string]bool{
	"contact_type":     true,
	"contact_sub_type": true,
	"dedupe_rule":      true,
	"location_type_id": true,
	"phone_type_id":    true,
	"website_type_id":  true,
	"is_override":      true,
	"contact_group":    true,
}

func isReserved(crmField string) bool {
	return reservedKeys[crmField] || strings.HasPrefix(crmField, "entity_tag")
}

// MapToProcessor resolves the mapping table of entityKey against the
// submission and stores the result in values[entityKey]. Entries whose
// mapping is empty are skipped, as are empty submitted values. A table that
// yields literals only is dropped, so nothing is written without submitted
// data.
func (m *Mapper) MapToProcessor(cfg *models.ProcessorConfig, sub *models.Submission, values models.FormValues, entityKey string) (models.FormValues, error) {
	if values == nil {
		values = make(models.FormValues)
	}
	mapped, fromFields, err := m.mapEntity(sub, cfg.Entity(entityKey), cfg.Transforms[entityKey])
	if err != nil {
		return values, fmt.Errorf("failed to map %s: %w", entityKey, err)
	}
	if fromFields == 0 {
		return values, nil
	}
	target, ok := values[entityKey]
	if !ok {
		target = make(map[string]interface{}, len(mapped))
		values[entityKey] = target
	}
	for k, v := range mapped {
		target[k] = v
	}
	return values, nil
}

// MapEntity resolves a single mapping table. Arrays and maps pass through
// untouched for entity specific handling. A mapping that references no form
// field is sent as a literal, except for reserved keys.
func (m *Mapper) MapEntity(sub *models.Submission, entity models.EntityConfig, transforms map[string]string) (map[string]interface{}, error) {
	out, _, err := m.mapEntity(sub, entity, transforms)
	return out, err
}

// mapEntity also returns how many values came from submitted fields
func (m *Mapper) mapEntity(sub *models.Submission, entity models.EntityConfig, transforms map[string]string) (map[string]interface{}, int, error) {
	out := make(map[string]interface{})
	fromFields := 0
	for _, crmField := range sortedFields(entity) {
		mapping := entity[crmField]
		value, literal := m.resolve(sub, mapping)
		if literal && isReserved(crmField) {
			continue
		}
		if models.IsEmpty(value) {
			continue
		}
		if expr := transforms[crmField]; expr != "" && m.transformer != nil {
			transformed, err := m.transformer.Transform(expr, value)
			if err != nil {
				return nil, 0, fmt.Errorf("field %s: %w", crmField, err)
			}
			if models.IsEmpty(transformed) {
				continue
			}
			value = transformed
		}
		out[crmField] = value
		if !literal {
			fromFields++
		}
	}
	return out, fromFields, nil
}

// resolve returns the submitted value of the field referenced by mapping.
// Plain text that names no field is returned as a literal. Unresolved
// %slug% and {host} tags yield nil.
func (m *Mapper) resolve(sub *models.Submission, mapping string) (interface{}, bool) {
	tag := strings.TrimSpace(mapping)
	if tag == "" || sub == nil || sub.Form == nil {
		return nil, false
	}
	if field := sub.Form.FieldByTag(tag); field != nil {
		return sub.FieldValue(field), false
	}
	if strings.HasPrefix(tag, "{") || strings.Contains(tag, "%") {
		return nil, false
	}
	return mapping, true
}

// Value returns the submitted value of the form field referenced by mapping,
// or nil when mapping is empty or references no field.
func (m *Mapper) Value(sub *models.Submission, mapping string) interface{} {
	if mapping == "" || sub == nil || sub.Form == nil {
		return nil
	}
	field := sub.Form.FieldByTag(mapping)
	if field == nil {
		return nil
	}
	return sub.FieldValue(field)
}

// MapToPrerender sets form field defaults from a CRM record. Fields listed in
// ignore, empty CRM values and form fields that already carry a default are
// left alone.
func (m *Mapper) MapToPrerender(cfg *models.ProcessorConfig, form *models.Form, ignore []string, record map[string]interface{}, entityKey string) *models.Form {
	entity := cfg.Entity(entityKey)
	skip := make(map[string]bool, len(ignore))
	for _, f := range ignore {
		skip[f] = true
	}

	for _, crmField := range sortedRecordFields(record) {
		value := record[crmField]
		if skip[crmField] || models.IsEmpty(value) {
			continue
		}
		mapping, ok := entity[crmField]
		if !ok || mapping == "" {
			continue
		}
		field := form.FieldByTag(mapping)
		if field == nil || field.HasDefault() {
			continue
		}
		field.SetDefault(value)
		if m.log != nil {
			m.log.WithFields(logrus.Fields{
				"entity": entityKey,
				"field":  field.ID,
				"source": crmField,
			}).Debug("prefilled form field")
		}
	}
	return form
}

func sortedFields(entity models.EntityConfig) []string {
	keys := make([]string, 0, len(entity))
	for k := range entity {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRecordFields(record map[string]interface{}) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
