package crm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Call is a recorded API invocation
type Call struct {
	Entity string
	Action string
	Params Params
}

// dedupe match keys compared by duplicatecheck, in priority order
var memoryDedupeFields = []string{"email", "first_name", "last_name", "organization_name", "household_name"}

// MemoryGateway is an in-memory CRM used for local development and tests.
// It understands create, get, getsingle, delete, duplicatecheck, the "or"
// option and chained api.<Entity>.create calls.
type MemoryGateway struct {
	mu       sync.Mutex
	records  map[string]map[int]Record
	nextID   map[string]int
	failures map[string]error
	calls    []Call
}

// NewMemoryGateway creates an empty in-memory CRM
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		records:  make(map[string]map[int]Record),
		nextID:   make(map[string]int),
		failures: make(map[string]error),
	}
}

// Seed stores a record and returns its id. A record without an id gets the next free one.
func (m *MemoryGateway) Seed(entity string, rec Record) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := copyRecord(rec)
	id := stored.ID()
	if entity == "Contact" {
		id = stored.ContactID()
	}
	if id == 0 {
		id = m.allocate(entity)
	} else if id > m.nextID[entity] {
		m.nextID[entity] = id
	}
	stored["id"] = id
	if entity == "Contact" {
		stored["contact_id"] = id
	}
	m.table(entity)[id] = stored
	return id
}

// FailOn makes every entity.action call return err
func (m *MemoryGateway) FailOn(entity, action string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[entity+"."+action] = err
}

// Calls returns every call made so far
func (m *MemoryGateway) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsTo returns the calls made to entity.action
func (m *MemoryGateway) CallsTo(entity, action string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Entity == entity && c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

// Records returns the stored records of an entity ordered by id
func (m *MemoryGateway) Records(entity string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(entity, nil)
}

// Call implements Gateway
func (m *MemoryGateway) Call(ctx context.Context, entity, action string, params Params) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Entity: entity, Action: action, Params: copyParams(params)})
	if err, ok := m.failures[entity+"."+action]; ok {
		return nil, err
	}

	switch action {
	case "create":
		return m.create(entity, params), nil
	case "get":
		return m.get(entity, params), nil
	case "getsingle":
		res := m.get(entity, params)
		if len(res.Values) != 1 {
			return nil, &APIError{
				Entity:  entity,
				Action:  action,
				Message: fmt.Sprintf("Expected one %s but found %d", entity, len(res.Values)),
			}
		}
		return res, nil
	case "delete":
		id := ToInt(params["id"])
		if _, ok := m.table(entity)[id]; !ok {
			return nil, &APIError{Entity: entity, Action: action, Message: "Could not delete " + entity}
		}
		delete(m.table(entity), id)
		return &Result{Count: 1}, nil
	case "duplicatecheck":
		return m.duplicateCheck(params), nil
	}
	return nil, &APIError{Entity: entity, Action: action, Message: "API (" + entity + ", " + action + ") does not exist"}
}

func (m *MemoryGateway) create(entity string, params Params) *Result {
	id := ToInt(params["id"])
	if id == 0 && entity == "Contact" {
		id = ToInt(params["contact_id"])
	}
	table := m.table(entity)
	rec, exists := table[id]
	if !exists {
		if id == 0 {
			id = m.allocate(entity)
		} else if id > m.nextID[entity] {
			m.nextID[entity] = id
		}
		rec = Record{"id": id}
	}
	for k, v := range params {
		if k == "sequential" || k == "id" || strings.HasPrefix(k, "api.") {
			continue
		}
		rec[k] = v
	}
	rec["id"] = id
	if entity == "Contact" {
		rec["contact_id"] = id
	}
	table[id] = rec
	return &Result{Count: 1, ID: id, Values: []Record{copyRecord(rec)}}
}

func (m *MemoryGateway) get(entity string, params Params) *Result {
	var orGroup []string
	limit := 0
	if opts, ok := params["options"].(map[string]interface{}); ok {
		orGroup = orFields(opts["or"])
		limit = ToInt(opts["limit"])
	}
	match := func(rec Record) bool {
		orMatched := len(orGroup) == 0
		for k, v := range params {
			if isControlParam(k) {
				continue
			}
			if contains(orGroup, k) {
				if fieldEquals(rec[k], v) {
					orMatched = true
				}
				continue
			}
			if !fieldEquals(rec[k], v) {
				return false
			}
		}
		return orMatched
	}

	values := m.sorted(entity, match)
	if limit > 0 && len(values) > limit {
		values = values[:limit]
	}
	res := &Result{Count: len(values), Values: values}
	if len(values) == 1 {
		res.ID = values[0].ID()
	}

	for k, v := range params {
		if !strings.HasPrefix(k, "api.") || !strings.HasSuffix(k, ".create") {
			continue
		}
		chained := strings.TrimSuffix(strings.TrimPrefix(k, "api."), ".create")
		chainParams, ok := toParams(v)
		if !ok {
			continue
		}
		for _, rec := range values {
			resolved := make(Params, len(chainParams))
			for ck, cv := range chainParams {
				if s, ok := cv.(string); ok && s == "$value.id" {
					resolved[ck] = rec.ID()
					continue
				}
				resolved[ck] = cv
			}
			m.calls = append(m.calls, Call{Entity: chained, Action: "create", Params: resolved})
			m.create(chained, resolved)
		}
	}
	return res
}

func (m *MemoryGateway) duplicateCheck(params Params) *Result {
	matchParams, _ := toParams(params["match"])
	contactType := ToString(matchParams["contact_type"])

	var compared []string
	for _, f := range memoryDedupeFields {
		if ToString(matchParams[f]) != "" {
			compared = append(compared, f)
		}
	}
	if len(compared) == 0 {
		return &Result{}
	}

	values := m.sorted("Contact", func(rec Record) bool {
		if contactType != "" && rec.String("contact_type") != contactType {
			return false
		}
		for _, f := range compared {
			if !strings.EqualFold(strings.TrimSpace(rec.String(f)), strings.TrimSpace(ToString(matchParams[f]))) {
				return false
			}
		}
		return true
	})
	out := make([]Record, len(values))
	for i, rec := range values {
		out[i] = Record{"id": rec.ID()}
	}
	return &Result{Count: len(out), Values: out}
}

func (m *MemoryGateway) table(entity string) map[int]Record {
	t, ok := m.records[entity]
	if !ok {
		t = make(map[int]Record)
		m.records[entity] = t
	}
	return t
}

func (m *MemoryGateway) allocate(entity string) int {
	m.nextID[entity]++
	return m.nextID[entity]
}

func (m *MemoryGateway) sorted(entity string, keep func(Record) bool) []Record {
	table := m.records[entity]
	ids := make([]int, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []Record
	for _, id := range ids {
		rec := table[id]
		if keep == nil || keep(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	return out
}

func isControlParam(k string) bool {
	switch k {
	case "sequential", "options", "return", "check_permissions":
		return true
	}
	return strings.HasPrefix(k, "api.")
}

func fieldEquals(have, want interface{}) bool {
	if items, ok := have.([]interface{}); ok {
		for _, item := range items {
			if ToString(item) == ToString(want) {
				return true
			}
		}
		return false
	}
	if items, ok := have.([]string); ok {
		return contains(items, ToString(want))
	}
	return ToString(have) == ToString(want)
}

func orFields(v interface{}) []string {
	var out []string
	switch groups := v.(type) {
	case [][]string:
		for _, g := range groups {
			out = append(out, g...)
		}
	case []interface{}:
		for _, g := range groups {
			switch inner := g.(type) {
			case []string:
				out = append(out, inner...)
			case []interface{}:
				for _, f := range inner {
					out = append(out, ToString(f))
				}
			}
		}
	}
	return out
}

func toParams(v interface{}) (Params, bool) {
	switch val := v.(type) {
	case Params:
		return val, true
	case map[string]interface{}:
		return Params(val), true
	case Record:
		return Params(val), true
	}
	return nil, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func copyParams(p Params) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
