package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DateTimeLayout is the format the CRM expects for date-time parameters
const DateTimeLayout = "2006-01-02 15:04:05"

// ClientOptions configures the REST client
type ClientOptions struct {
	Endpoint string // e.g. https://example.org/sites/all/modules/civicrm/extern/rest.php
	APIKey   string
	SiteKey  string
	Location *time.Location
	// HTTPClient defaults to http.DefaultClient; the host request timeout is the only bound
	HTTPClient *http.Client
}

// Client calls the CRM REST endpoint
type Client struct {
	endpoint string
	apiKey   string
	siteKey  string
	location *time.Location
	http     *http.Client
	log      logrus.FieldLogger
}

// NewClient creates a new REST client
func NewClient(opts ClientOptions, log logrus.FieldLogger) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("crm endpoint is required")
	}
	if _, err := url.Parse(opts.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid crm endpoint: %v", err)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		siteKey:  opts.SiteKey,
		location: loc,
		http:     httpClient,
		log:      log,
	}, nil
}

// Call invokes entity.action(params). Date-time parameters are rendered in
// the site timezone for the duration of the call.
func (c *Client) Call(ctx context.Context, entity, action string, params Params) (*Result, error) {
	payload := NormalizeParams(params, c.location)
	if _, ok := payload["sequential"]; !ok {
		payload["sequential"] = 1
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s.%s params: %v", entity, action, err)
	}

	form := url.Values{}
	form.Set("entity", entity)
	form.Set("action", action)
	form.Set("json", string(body))
	form.Set("api_key", c.apiKey)
	form.Set("key", c.siteKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")

	c.log.WithFields(logrus.Fields{"entity": entity, "action": action}).Debug("crm api call")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrTransport, entity, action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s.%s response: %v", ErrTransport, entity, action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s.%s returned HTTP %d", ErrTransport, entity, action, resp.StatusCode)
	}
	return decodeResponse(entity, action, data)
}

func decodeResponse(entity, action string, data []byte) (*Result, error) {
	var envelope struct {
		IsError      interface{} `json:"is_error"`
		ErrorMessage string      `json:"error_message"`
		ErrorCode    interface{} `json:"error_code"`
		Trace        string      `json:"trace"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: invalid %s.%s response: %v", ErrTransport, entity, action, err)
	}
	if ToInt(envelope.IsError) != 0 {
		return nil, &APIError{
			Entity:  entity,
			Action:  action,
			Message: envelope.ErrorMessage,
			Code:    ToString(envelope.ErrorCode),
			Trace:   envelope.Trace,
		}
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: invalid %s.%s response: %v", ErrTransport, entity, action, err)
	}
	// getsingle returns the bare record
	if action == "getsingle" && result.Values == nil {
		var rec Record
		if err := json.Unmarshal(data, &rec); err == nil {
			result.Values = []Record{rec}
			result.Count = 1
			result.ID = rec.ID()
		}
	}
	return &result, nil
}

// NormalizeParams returns a copy of params with every time.Time rendered in loc
func NormalizeParams(params Params, loc *time.Location) Params {
	out := make(Params, len(params))
	for k, v := range params {
		out[k] = normalizeValue(v, loc)
	}
	return out
}

func normalizeValue(v interface{}, loc *time.Location) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.In(loc).Format(DateTimeLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.In(loc).Format(DateTimeLayout)
	case Params:
		return NormalizeParams(val, loc)
	case map[string]interface{}:
		return map[string]interface{}(NormalizeParams(Params(val), loc))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item, loc)
		}
		return out
	}
	return v
}
