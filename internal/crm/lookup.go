package crm

import "context"

// LookupStatus classifies the outcome of a single-record fetch
type LookupStatus int

const (
	NotFound LookupStatus = iota
	Found
	Ambiguous
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	}
	return "not_found"
}

// Lookup is the result of GetSingle
type Lookup struct {
	Status LookupStatus
	Record Record
	Count  int
}

// Found reports whether exactly one record matched
func (l Lookup) Found() bool { return l.Status == Found }

// GetSingle fetches the one record of entity matching params. Zero matches
// yield NotFound and several yield Ambiguous; neither is an error.
func GetSingle(ctx context.Context, gw Gateway, entity string, params Params) (Lookup, error) {
	query := make(Params, len(params)+2)
	for k, v := range params {
		query[k] = v
	}
	query["sequential"] = 1
	if _, ok := query["options"]; !ok {
		query["options"] = map[string]interface{}{"limit": 2}
	}

	res, err := gw.Call(ctx, entity, "get", query)
	if err != nil {
		return Lookup{}, err
	}
	switch n := len(res.Values); {
	case n == 0:
		return Lookup{Status: NotFound}, nil
	case n == 1:
		return Lookup{Status: Found, Record: res.Values[0], Count: 1}, nil
	default:
		return Lookup{Status: Ambiguous, Count: n}, nil
	}
}
