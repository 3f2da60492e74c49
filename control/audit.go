package control

import (
	"net/http"
	"strconv"
	"time"

	"github.com/evan-idocoding/levelctl/audit"
)

const defaultAuditLimit = 50

type auditResponse struct {
	OK      bool          `json:"ok"`
	Entries []audit.Entry `json:"entries"`
}

func (h *handlers) listAudit(w http.ResponseWriter, r *http.Request) {
	format := formatFromRequest(r, h.cfg.DefaultFormat)
	limit := defaultAuditLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(w, r, format, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}
	entries, err := h.cfg.Audit.List(r.Context(), r.URL.Query().Get("logger"), limit)
	if err != nil {
		writeError(w, r, format, http.StatusInternalServerError, err.Error())
		return
	}
	if format == FormatJSON {
		if entries == nil {
			entries = []audit.Entry{}
		}
		writeJSON(w, r, http.StatusOK, auditResponse{OK: true, Entries: entries})
		return
	}
	var b textBuilder
	for _, e := range entries {
		sec := strconv.FormatInt(e.Seq, 10)
		b.line(sec, "applied_at", e.AppliedAt.UTC().Format(time.RFC3339Nano))
		b.line(sec, "logger", e.Logger)
		b.line(sec, "change", e.OldLevel+" -> "+e.NewLevel)
		b.line(sec, "source", e.Source)
		b.line(sec, "peer", "pid="+strconv.Itoa(e.PeerPID)+" uid="+strconv.Itoa(e.PeerUID))
		if e.Created {
			b.line(sec, "created", "true")
		}
	}
	writeText(w, r, http.StatusOK, b.String())
}
