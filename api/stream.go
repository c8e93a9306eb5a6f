package api

import (
	"fmt"
	"net/http"

	"github.com/mezonai/votechain/jsonx"
	"github.com/mezonai/votechain/logx"
)

// eventsHandler streams ledger events as server-sent events until the
// client goes away
func (s *APIServer) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.EventBus == nil {
		writeError(w, errEventsUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch := s.EventBus.Subscribe()
	defer s.EventBus.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", id)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := jsonx.Marshal(ev.Payload())
			if err != nil {
				logx.Error("API", "Failed to encode event:", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
