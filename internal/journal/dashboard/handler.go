package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/practicejournal/pj/internal/journal/engine"
	jsync "github.com/practicejournal/pj/internal/journal/sync"
)

// Handler turns tracker and daemon callbacks into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a handler broadcasting through server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{server: server, logger: logger}
}

// OnStatus broadcasts a status change. Pass it to Tracker.Subscribe.
func (h *Handler) OnStatus(st engine.Status) {
	msg, err := statusMessage(st)
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return
	}
	h.server.Broadcast(msg)
}

// OnSync broadcasts the outcome of a resolver pass. Pass it as the
// daemon's OnSync callback.
func (h *Handler) OnSync(rep *jsync.Report, err error) {
	data := SyncCompleteData{}
	if rep != nil {
		data.Duration = rep.Duration
		data.Changed = rep.Changed()
		for _, kr := range rep.Kinds {
			if kr != nil {
				data.Kinds = append(data.Kinds, kr)
			}
		}
	}
	if err != nil {
		data.Error = err.Error()
	}

	raw, merr := json.Marshal(data)
	if merr != nil {
		h.logger.Printf("Failed to marshal sync data: %v", merr)
		return
	}
	h.server.Broadcast(Message{
		Type:      MessageTypeSyncComplete,
		Timestamp: time.Now(),
		Data:      raw,
	})
}

func statusMessage(st engine.Status) (Message, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: MessageTypeStatus, Timestamp: time.Now(), Data: raw}, nil
}
