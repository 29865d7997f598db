package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"caixa/internal/core"
)

// initialBalanceFrom reads ?saldo_inicial=, falling back to the configured value.
func (s *Server) initialBalanceFrom(r *http.Request) (float64, error) {
	v := strings.TrimSpace(r.URL.Query().Get("saldo_inicial"))
	if v == "" {
		return s.initialBalance, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("saldo_inicial must be a number, got %q", v)
	}
	return f, nil
}

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// writeJSON encodes v before writing the header, so an encoding failure
// answers 500 instead of a truncated body under the intended status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		body, _ = json.Marshal(map[string]string{"error": "encode response: " + err.Error()})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// percent is the width of a bar for v on a scale whose top is max.
func percent(v, max float64) string {
	if max <= 0 || math.IsNaN(v) || v <= 0 {
		return "0"
	}
	p := v / max * 100
	if p > 100 {
		p = 100
	}
	return strconv.FormatFloat(p, 'f', 1, 64)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money":  core.FormatMoney,
		"amount": core.FormatAmount,
		"valor":  func(v core.Valor) string { return core.FormatMoney(v.Float()) },
		"pct":    percent,
		"at": func(s core.Series, i int) float64 {
			if i < 0 || i >= len(s.Values) {
				return 0
			}
			return s.Values[i]
		},
	}
}
