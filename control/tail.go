package control

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evan-idocoding/levelctl/rt/safego"
)

const (
	defaultTailLines = 100
	watchWriteWait   = 5 * time.Second
	watchPingPeriod  = 30 * time.Second
)

// tail writes the most recent output lines as text/plain.
func (h *handlers) tail(w http.ResponseWriter, r *http.Request) {
	n := defaultTailLines
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			writeError(w, r, FormatText, http.StatusBadRequest, "invalid n")
			return
		}
		n = v
	}
	var b bytes.Buffer
	_ = h.cfg.Sink.Dump(&b, n)
	writeText(w, r, http.StatusOK, b.String())
}

// watch streams every line written after the upgrade as one text message.
// The stream ends when the client goes away or the server shuts down.
func (h *handlers) watch(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Logger.Warn("upgrading to websocket", "err", err)
		return
	}
	defer conn.Close()

	lines, cancel := h.cfg.Sink.Subscribe()
	defer cancel()

	// The reader only exists to notice the peer closing the connection.
	closed := make(chan struct{})
	safego.Go(r.Context(), func(context.Context) error {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return nil
			}
		}
	}, safego.WithName("control.watch.reader"), safego.WithLogger(h.cfg.Logger),
		safego.WithFinally(func() { close(closed) }))

	ping := time.NewTicker(watchPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
