package control

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/evan-idocoding/levelctl/loglevel"
	"github.com/evan-idocoding/levelctl/script"
	"github.com/evan-idocoding/levelctl/target"
)

type levelGetResponse struct {
	OK  bool              `json:"ok"`
	Log loglevel.Snapshot `json:"log"`
}

type levelListResponse struct {
	OK      bool                `json:"ok"`
	Loggers []loglevel.Snapshot `json:"loggers"`
}

type levelSetResponse struct {
	OK      bool   `json:"ok"`
	ID      string `json:"id,omitempty"`
	Logger  string `json:"logger"`
	Old     string `json:"old_level"`
	New     string `json:"new_level"`
	Created bool   `json:"created"`
}

// getLevel never creates the logger: reading an unknown name is a 404.
func (h *handlers) getLevel(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r, h.cfg.DefaultFormat)
	name := h.loggerParam(r)
	l, ok := h.cfg.Registry.Lookup(name)
	if !ok {
		writeError(w, r, format, http.StatusNotFound, "unknown logger "+strconv.Quote(name))
		return
	}
	snap := l.Snapshot()
	if format == FormatJSON {
		writeJSON(w, r, http.StatusOK, levelGetResponse{OK: true, Log: snap})
		return
	}
	writeText(w, r, http.StatusOK, renderSnapshotText(snap))
}

func (h *handlers) listLevels(w http.ResponseWriter, r *http.Request) {
	snaps := h.cfg.Registry.Snapshots()
	if formatFromRequest(r, h.cfg.DefaultFormat) == FormatJSON {
		writeJSON(w, r, http.StatusOK, levelListResponse{OK: true, Loggers: snaps})
		return
	}
	var b strings.Builder
	for _, s := range snaps {
		b.WriteString(renderSnapshotText(s))
	}
	writeText(w, r, http.StatusOK, b.String())
}

// setLevel accepts lenient level names (?level=warn, ?level=Err, ...).
func (h *handlers) setLevel(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r, h.cfg.DefaultFormat)
	level, ok := loglevel.NormalizeLevel(r.URL.Query().Get("level"))
	if !ok {
		writeError(w, r, format, http.StatusBadRequest,
			"invalid level (want one of: "+strings.Join(loglevel.Names(), ", ")+")")
		return
	}
	res, err := h.submit(r, target.Request{
		Script: script.Script{Logger: h.loggerParam(r), Level: level},
		Source: target.SourceLevelSet,
		Wait:   true,
	})
	if err != nil {
		writeError(w, r, format, statusForSubmitError(err), err.Error())
		return
	}
	resp := levelSetResponse{
		OK:      true,
		ID:      res.ID,
		Logger:  res.Logger,
		Old:     res.OldLevel.String(),
		New:     res.NewLevel.String(),
		Created: res.Created,
	}
	if format == FormatJSON {
		writeJSON(w, r, http.StatusOK, resp)
		return
	}
	var b textBuilder
	b.line("log", "logger", resp.Logger)
	b.line("log", "old_level", resp.Old)
	b.line("log", "new_level", resp.New)
	b.line("log", "created", strconv.FormatBool(resp.Created))
	writeText(w, r, http.StatusOK, b.String())
}

func renderSnapshotText(s loglevel.Snapshot) string {
	var b textBuilder
	b.line(s.Logger, "level", s.Level)
	b.line(s.Logger, "level_value", strconv.Itoa(s.LevelValue))
	return b.String()
}

func statusForSubmitError(err error) int {
	switch {
	case errors.Is(err, target.ErrInvalidLevel):
		return http.StatusBadRequest
	case errors.Is(err, target.ErrBusy), errors.Is(err, target.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
