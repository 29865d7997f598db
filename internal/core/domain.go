package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	Expenses Kind = "gastos"
	Profits  Kind = "lucros"
)

// Category labels offered by the records form.
const (
	TipoInsumos    = "Insumos"
	TipoTransporte = "Transporte"
	TipoVendas     = "Vendas"
	TipoOutro      = "Outro"
)

// DateLayout is the day/month/year display format used by the API.
const DateLayout = "02/01/2006"

type (
	// Kind names one of the two collections and doubles as the API path segment.
	Kind string

	// ID is a server-assigned identifier. The API may send it as a number or a string.
	ID string

	// Valor is the raw amount as received. It is parsed on every arithmetic use.
	Valor string

	Transaction struct {
		ID    ID     `json:"id"`
		Tipo  string `json:"tipo"`
		Valor Valor  `json:"valor"`
		Data  string `json:"data"`
	}

	// Draft is the request body for create and update; the server assigns the id.
	Draft struct {
		Tipo  string `json:"tipo"`
		Valor Valor  `json:"valor"`
		Data  string `json:"data"`
	}
)

var (
	ErrInvalidKind  = errors.New("invalid kind")
	ErrEmptyTipo    = errors.New("empty tipo")
	ErrInvalidValor = errors.New("invalid valor")
	ErrInvalidData  = errors.New("invalid data")
)

// Kinds returns both collection kinds in display order.
func Kinds() []Kind {
	return []Kind{Expenses, Profits}
}

// Tipos returns the category labels offered by the records form.
func Tipos() []string {
	return []string{TipoInsumos, TipoTransporte, TipoVendas, TipoOutro}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	return k == Expenses || k == Profits
}

func (k Kind) String() string {
	return string(k)
}

// Label returns the singular, capitalised name shown in titles.
func (k Kind) Label() string {
	switch k {
	case Expenses:
		return "Gasto"
	case Profits:
		return "Lucro"
	default:
		return string(k)
	}
}

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// UnmarshalJSON accepts numbers and strings; null leaves the id empty.
func (id *ID) UnmarshalJSON(b []byte) error {
	s, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(s)
	return nil
}

// MarshalJSON writes canonical integer ids back as numbers and everything
// else, "007" and "+5" included, as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts numbers and strings; null leaves the amount empty.
func (v *Valor) UnmarshalJSON(b []byte) error {
	s, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("valor: %w", err)
	}
	*v = Valor(s)
	return nil
}

// Float parses the amount. Anything that is not a number yields NaN, which
// propagates through every sum it takes part in.
func (v Valor) Float() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// IsDecimal reports whether the amount is a finite, plain decimal number.
// Hex floats and infinities parse as floats but are not amounts.
func (v Valor) IsDecimal() bool {
	s := strings.TrimSpace(string(v))
	if strings.ContainsAny(s, "xXpP") {
		return false
	}
	f := v.Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (v Valor) String() string {
	return string(v)
}

func (t Transaction) Draft() Draft {
	return Draft{Tipo: t.Tipo, Valor: t.Valor, Data: t.Data}
}

// Validate checks a draft at the form boundary. The store and the sync
// service never validate; they pass whatever the server accepts.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Tipo) == "" {
		return ErrEmptyTipo
	}
	if !d.Valor.IsDecimal() {
		return fmt.Errorf("%w: %q", ErrInvalidValor, d.Valor)
	}
	if _, err := ParseDate(d.Data); err != nil {
		return err
	}
	return nil
}

// FormatDate renders t as dd/mm/yyyy.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a dd/mm/yyyy date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidData, s)
	}
	return t, nil
}

// NormalizeDate accepts dd/mm/yyyy or the ISO yyyy-mm-dd sent by HTML date
// inputs and returns the display form.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return FormatDate(t), nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return FormatDate(t), nil
}

func scalarText(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", b)
	}
	return n.String(), nil
}
