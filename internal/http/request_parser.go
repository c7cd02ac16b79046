// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data.
// Bodies may be JSON or form-encoded; both are read through the same
// RequestBodyParser so handlers never care which one arrived.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

// maxBodyBytes caps request bodies, batches included.
const maxBodyBytes = 1 << 20

var (
	errEmptyBatch         = errors.New("batch must contain at least one transaction")
	errUnknownCategory    = errors.New("unrecognized category")
	errInvalidRange       = errors.New("from must not be after to")
	errInvalidTime        = errors.New("invalid time")
	errMissingRangeBounds = errors.New("from and to are required")
)

// farFuture bounds open-ended ranges.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// RangeParams holds a half-open [From, To) window parsed from the query.
type RangeParams struct {
	From time.Time
	To   time.Time
}

// ParseRangeParams reads from/to from the query. When required is false a
// missing from means the epoch and a missing to means far in the future.
func ParseRangeParams(query url.Values, required bool) (RangeParams, bool, error) {
	fromStr := strings.TrimSpace(query.Get("from"))
	toStr := strings.TrimSpace(query.Get("to"))
	if fromStr == "" && toStr == "" {
		if required {
			return RangeParams{}, false, errMissingRangeBounds
		}
		return RangeParams{}, false, nil
	}
	if required && (fromStr == "" || toStr == "") {
		return RangeParams{}, false, errMissingRangeBounds
	}

	params := RangeParams{From: time.UnixMilli(0).UTC(), To: farFuture}
	var err error
	if fromStr != "" {
		if params.From, err = parseTime(fromStr); err != nil {
			return RangeParams{}, false, fmt.Errorf("from: %w", err)
		}
	}
	if toStr != "" {
		if params.To, err = parseTime(toStr); err != nil {
			return RangeParams{}, false, fmt.Errorf("to: %w", err)
		}
	}
	if params.From.After(params.To) {
		return RangeParams{}, false, errInvalidRange
	}
	return params, true, nil
}

// parseTime accepts RFC 3339, a bare YYYY-MM-DD date (UTC midnight) or
// epoch milliseconds.
func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return core.FromMillis(ms), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w %q", errInvalidTime, s)
}

// ParseLimit reads a positive integer query value, falling back to def and
// capping at max.
func ParseLimit(query url.Values, def, max int) int {
	n := def
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	if n > max {
		n = max
	}
	return n
}

// RequestBodyParser handles different content types for request body parsing.
// It supports JSON objects, JSON arrays and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	jsonArray   []map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	switch trimmed[0] {
	case '{':
		p.jsonData = make(map[string]interface{})
		p.err = json.Unmarshal([]byte(trimmed), &p.jsonData)
		return p.err
	case '[':
		p.err = json.Unmarshal([]byte(trimmed), &p.jsonArray)
		return p.err
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Items returns one getter per element of a JSON array body.
func (p *RequestBodyParser) Items() []func(string) string {
	items := make([]func(string) string, len(p.jsonArray))
	for i, obj := range p.jsonArray {
		obj := obj
		items[i] = func(key string) string {
			return sanitizeInput(stringValue(obj[key]))
		}
	}
	return items
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil || p.jsonArray != nil
}

// IsArray returns true if the body was a JSON array.
func (p *RequestBodyParser) IsArray() bool {
	return p.jsonArray != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseTransaction builds a transaction from request fields. pathID, when
// set, wins over any id in the body. A missing timestamp means now.
// Categories must be one of the recognized ones for the kind.
func ParseTransaction(get func(string) string, pathID string, now time.Time) (core.Transaction, error) {
	kind, err := core.ParseKind(get("kind"))
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "kind", Err: err}
	}

	amount, err := core.ParseAmount(get("amount"))
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "amount", Err: err}
	}

	category := get("category")
	if !core.IsRecognizedCategory(kind, category) {
		return core.Transaction{}, &core.ValidationError{
			Field: "category",
			Err:   fmt.Errorf("%w %q for %s (allowed: %s)", errUnknownCategory, category, kind, strings.Join(core.CategoriesFor(kind), ", ")),
		}
	}

	ts := now
	if raw := get("timestamp"); raw != "" {
		if ts, err = parseTime(raw); err != nil {
			return core.Transaction{}, &core.ValidationError{Field: "timestamp", Err: err}
		}
	}

	id := pathID
	if id == "" {
		id = get("id")
	}

	return core.Transaction{
		ID:        id,
		Amount:    amount,
		Kind:      kind,
		Category:  core.CanonicalCategory(kind, category),
		Timestamp: ts,
		Note:      get("note"),
	}, nil
}
