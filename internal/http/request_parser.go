// Package http exposes the ledger as a JSON API.
//
// This file turns request bodies and query strings into domain values.
// Bodies may be JSON or form encoded; field names accept the aliases older
// clients send (userId for ownerId, transactionType for kind, date for
// occurredAt).
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budgetledger/internal/core"
)

const maxBodyBytes = 64 << 10

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}

// RequestBodyParser reads a body once and serves fields from JSON or form data.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = &core.ValidationError{Reason: "request body too large"}
	}
	return p
}

// Parse decodes the body. An empty body parses to no fields.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = &core.ValidationError{Reason: "malformed JSON body"}
		}
		return p.err
	}
	form, err := url.ParseQuery(string(trimmed))
	if err != nil {
		p.err = &core.ValidationError{Reason: "malformed form body"}
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns the first non-empty value among keys.
func (p *RequestBodyParser) Get(keys ...string) string {
	v, _ := p.Lookup(keys...)
	return v
}

// Lookup is Get that also reports whether any key was present at all.
func (p *RequestBodyParser) Lookup(keys ...string) (string, bool) {
	found := false
	for _, k := range keys {
		if p.jsonData != nil {
			if raw, ok := p.jsonData[k]; ok && raw != nil {
				found = true
				if s := sanitizeInput(stringValue(raw)); s != "" {
					return s, true
				}
			}
		}
		if p.formData != nil {
			if vs, ok := p.formData[k]; ok {
				found = true
				if len(vs) > 0 {
					if s := sanitizeInput(vs[0]); s != "" {
						return s, true
					}
				}
			}
		}
	}
	return "", found
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns its
// calendar date, read in the offset the timestamp carries, as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return time.Time{}, errors.New("invalid date")
}

// ParseCreateRequest builds a transaction from a create body. Missing fields
// are left zero so validation can report all of them together.
func ParseCreateRequest(p *RequestBodyParser) (core.Transaction, error) {
	if err := p.Parse(); err != nil {
		return core.Transaction{}, err
	}
	tx := core.Transaction{
		OwnerID:     p.Get("ownerId", "userId"),
		Title:       p.Get("title"),
		Description: p.Get("description"),
		Category:    p.Get("category"),
	}

	if raw := p.Get("amount"); raw != "" {
		amt, err := core.ParseAmount(raw)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Amount = amt
	}
	if raw := p.Get("kind", "transactionType", "type"); raw != "" {
		k, err := core.ParseKind(raw)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Kind = k
	}
	if raw := p.Get("occurredAt", "date"); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			return core.Transaction{}, &core.ValidationError{Fields: []string{"occurredAt"}, Reason: "occurredAt must be a date (YYYY-MM-DD)"}
		}
		tx.OccurredAt = d
	}
	return tx, nil
}

// ParseUpdateRequest builds a patch from the fields present in the body.
func ParseUpdateRequest(p *RequestBodyParser) (core.TransactionPatch, error) {
	if err := p.Parse(); err != nil {
		return core.TransactionPatch{}, err
	}
	var patch core.TransactionPatch

	text := func(dst **string, keys ...string) error {
		v, ok := p.Lookup(keys...)
		if !ok {
			return nil
		}
		if v == "" {
			return &core.ValidationError{Fields: []string{keys[0]}, Reason: keys[0] + " must not be empty"}
		}
		*dst = &v
		return nil
	}
	if err := text(&patch.Title, "title"); err != nil {
		return patch, err
	}
	if err := text(&patch.Description, "description"); err != nil {
		return patch, err
	}
	if err := text(&patch.Category, "category"); err != nil {
		return patch, err
	}

	if raw, ok := p.Lookup("amount"); ok {
		amt, err := core.ParseAmount(raw)
		if err != nil {
			return patch, err
		}
		patch.Amount = &amt
	}
	if raw, ok := p.Lookup("kind", "transactionType", "type"); ok {
		k, err := core.ParseKind(raw)
		if err != nil {
			return patch, err
		}
		patch.Kind = &k
	}
	if raw, ok := p.Lookup("occurredAt", "date"); ok {
		d, err := ParseDate(raw)
		if err != nil {
			return patch, &core.ValidationError{Fields: []string{"occurredAt"}, Reason: "occurredAt must be a date (YYYY-MM-DD)"}
		}
		patch.OccurredAt = &d
	}
	return patch, nil
}

// ParseListQuery reads ownerId, type, frequency, startDate and endDate.
//
// type is all, expense or income. frequency is a number of days or
// "custom"; a custom window with a missing or malformed date, like an empty
// or non-numeric frequency, applies no date filter.
func ParseListQuery(q url.Values) (string, core.ListFilter, error) {
	ownerID := sanitizeInput(q.Get("ownerId"))
	if ownerID == "" {
		ownerID = sanitizeInput(q.Get("userId"))
	}

	var f core.ListFilter
	switch t := strings.ToLower(strings.TrimSpace(q.Get("type"))); t {
	case "", "all":
	default:
		k, err := core.ParseKind(t)
		if err != nil {
			return "", f, err
		}
		f.Kind = k
	}

	freq := strings.ToLower(strings.TrimSpace(q.Get("frequency")))
	if freq == "custom" {
		f.Custom = true
		f.Start, _ = ParseDate(q.Get("startDate"))
		f.End, _ = ParseDate(q.Get("endDate"))
	} else if days, err := strconv.Atoi(freq); err == nil {
		f.Days = days
	}
	return ownerID, f, nil
}
