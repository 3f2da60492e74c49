package control

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Format controls the response rendering format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func formatFromRequest(r *http.Request, def Format) Format {
	if r == nil || r.URL == nil {
		return def
	}
	switch r.URL.Query().Get("format") {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return def
	}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, r *http.Request, code int, body string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(body))
}

// writeError renders msg in the requested format. Script executions always
// answer in JSON so the controller can decode them.
func writeError(w http.ResponseWriter, r *http.Request, f Format, code int, msg string) {
	if f == FormatJSON {
		writeJSON(w, r, code, errorResponse{OK: false, Error: msg})
		return
	}
	writeText(w, r, code, msg+"\n")
}

// textBuilder renders stable, greppable <section>\t<key>\t<value> lines.
type textBuilder struct {
	strings.Builder
}

func (b *textBuilder) line(section, key, value string) {
	b.WriteString(section)
	b.WriteByte('\t')
	b.WriteString(key)
	b.WriteByte('\t')
	b.WriteString(value)
	b.WriteByte('\n')
}
