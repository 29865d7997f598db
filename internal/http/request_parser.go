// Package http provides the dashboard server and its handlers.
//
// This file parses record forms. The same handler accepts an HTML form post
// or a JSON body, so scripts can drive the records screen too.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"caixa/internal/core"
)

// maxFormBytes bounds request bodies read by RequestBodyParser.
const maxFormBytes = 64 << 10

// RequestBodyParser handles JSON and form-encoded request bodies.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
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

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
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

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// recordForm is the state of the add/edit form on the records screen.
type recordForm struct {
	Kind  core.Kind
	ID    core.ID
	Tipo  string
	Valor string
	Data  string
}

// Editing reports whether submitting the form updates an existing entry.
func (f recordForm) Editing() bool {
	return !f.ID.IsZero()
}

// Draft converts the form into a validated draft. An ISO date from a date
// input is rewritten as dd/mm/yyyy; a comma decimal separator is rejected.
func (f recordForm) Draft() (core.Draft, error) {
	data := f.Data
	if norm, err := core.NormalizeDate(f.Data); err == nil {
		data = norm
	}
	d := core.Draft{Tipo: f.Tipo, Valor: core.Valor(f.Valor), Data: data}
	if err := d.Validate(); err != nil {
		return core.Draft{}, err
	}
	return d, nil
}

// parseRecordForm reads kind, id, tipo, valor and data from the request body.
func parseRecordForm(r *http.Request) (recordForm, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return recordForm{}, err
	}
	kind, err := core.ParseKind(p.Get("kind"))
	if err != nil {
		return recordForm{}, err
	}
	return recordForm{
		Kind:  kind,
		ID:    core.ID(p.Get("id")),
		Tipo:  p.Get("tipo"),
		Valor: p.Get("valor"),
		Data:  p.Get("data"),
	}, nil
}

// kindFromQuery returns ?kind=, defaulting to expenses.
func kindFromQuery(r *http.Request) (core.Kind, error) {
	v := r.URL.Query().Get("kind")
	if strings.TrimSpace(v) == "" {
		return core.Expenses, nil
	}
	return core.ParseKind(v)
}
