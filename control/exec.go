package control

import (
	"io"
	"net/http"

	"github.com/evan-idocoding/levelctl/httpx"
	"github.com/evan-idocoding/levelctl/script"
	"github.com/evan-idocoding/levelctl/target"
)

// Ack is the JSON acknowledgement of /script/exec.
type Ack struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	ID       string `json:"id,omitempty"`
	Logger   string `json:"logger,omitempty"`
	OldLevel string `json:"old_level,omitempty"`
	NewLevel string `json:"new_level,omitempty"`
	Created  bool   `json:"created"`
	Applied  bool   `json:"applied"`
}

// execScript validates the body as a script and hands it to the executor.
//
// By default it waits for the change to be applied and answers 200 with the
// old and new levels. With ?wait=0 it answers 202 once the script is queued.
func (h *handlers) execScript(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if httpx.IsBodyTooLarge(err) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge, Ack{Error: "script too large"})
			return
		}
		writeJSON(w, r, http.StatusBadRequest, Ack{Error: "read body: " + err.Error()})
		return
	}
	s, err := script.Parse(body)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, Ack{Error: err.Error()})
		return
	}

	wait := r.URL.Query().Get("wait") != "0"
	res, err := h.submit(r, target.Request{Script: s, Source: target.SourceScript, Wait: wait})
	if err != nil {
		writeJSON(w, r, statusForSubmitError(err), Ack{Error: err.Error()})
		return
	}

	ack := Ack{
		OK:       true,
		ID:       res.ID,
		Logger:   res.Logger,
		NewLevel: res.NewLevel.String(),
		Created:  res.Created,
		Applied:  res.Applied,
	}
	code := http.StatusAccepted
	if res.Applied {
		ack.OldLevel = res.OldLevel.String()
		code = http.StatusOK
	}
	writeJSON(w, r, code, ack)
}
