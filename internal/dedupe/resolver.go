// Package dedupe asks the CRM whether proposed contact attributes describe
// an existing contact. Matching rules live entirely in the CRM.
package dedupe

import (
	"context"
	"fmt"
	"strings"

	"cf-civicrm/internal/crm"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

// DefaultRuleType is used when a processor does not name a dedupe rule
const DefaultRuleType = "Unsupervised"

// Resolver wraps the CRM duplicate check
type Resolver struct {
	gw  crm.Gateway
	log logrus.FieldLogger
}

// NewResolver creates a new dedupe resolver
func NewResolver(gw crm.Gateway, log logrus.FieldLogger) *Resolver {
	return &Resolver{gw: gw, log: log}
}

// Resolve returns the id of the first contact matching attrs under rule, or
// 0 when none matches.
func (r *Resolver) Resolve(ctx context.Context, attrs map[string]interface{}, contactType, rule string) (int, error) {
	match := Normalize(attrs)
	if contactType != "" {
		match["contact_type"] = contactType
	}

	params := crm.Params{
		"match":             match,
		"check_permissions": 0,
	}
	if rule != "" {
		params["dedupe_rule_id"] = rule
	} else {
		params["rule_type"] = DefaultRuleType
	}

	res, err := r.gw.Call(ctx, "Contact", "duplicatecheck", params)
	if err != nil {
		return 0, fmt.Errorf("duplicate check failed: %w", err)
	}
	first := res.First()
	if first == nil {
		return 0, nil
	}
	id := first.ID()
	r.log.WithFields(logrus.Fields{
		"contact_id":   id,
		"contact_type": contactType,
		"rule":         rule,
		"matches":      len(res.Values),
	}).Debug("dedupe matched existing contact")
	return id, nil
}

// Normalize returns a copy of attrs with string values trimmed and in
// Unicode NFC so canonically equal names compare equal.
func Normalize(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if s, ok := v.(string); ok {
			out[k] = norm.NFC.String(strings.TrimSpace(s))
			continue
		}
		out[k] = v
	}
	return out
}
