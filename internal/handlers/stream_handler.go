package handlers

import (
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const writeWait = 5 * time.Second

// StreamHandler pushes a job's status over a websocket whenever it changes,
// closing once the job reaches a terminal step
type StreamHandler struct {
	supervisor SyncSupervisor
	interval   time.Duration
	logger     arbor.ILogger
}

func NewStreamHandler(sup SyncSupervisor, interval time.Duration, logger arbor.ILogger) *StreamHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &StreamHandler{
		supervisor: sup,
		interval:   interval,
		logger:     logger,
	}
}

func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade status stream")
		return
	}
	defer conn.Close()

	// Reader goroutine notices client disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last interface{}
	for {
		st := h.supervisor.Status(r.Context(), jobID)
		if jobID == "" {
			jobID = st.JobID
		}

		cmp := st
		cmp.UpdatedAt = time.Time{}
		if !reflect.DeepEqual(last, cmp) {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(st); err != nil {
				h.logger.Debug().Err(err).Str("job_id", jobID).Msg("Status stream closed")
				return
			}
			last = cmp
		}

		if !st.IsRunning {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(st.CurrentStep)))
			return
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
