// Package ingest is the boundary where the chain gateway delivers raw
// logs. Batches arrive over HTTP in ascending (blockNumber, logIndex)
// order; decoded events are handed to the dispatcher through a buffered
// channel. Redelivered batches are safe because every handler downstream
// tolerates replay.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/event"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/metrics"
)

// maxBatchBodyBytes bounds one gateway delivery.
const maxBatchBodyBytes = 8 << 20

// Source decodes gateway log batches onto the event channel.
type Source struct {
	out    chan event.Event
	logger *slog.Logger

	closeOnce sync.Once
}

func NewSource(buffer int, logger *slog.Logger) *Source {
	if buffer <= 0 {
		buffer = 256
	}
	return &Source{
		out:    make(chan event.Event, buffer),
		logger: logger.With("component", "ingest"),
	}
}

// Events is the ordered stream the dispatcher consumes.
func (s *Source) Events() <-chan event.Event {
	return s.out
}

// Close ends the stream; the dispatcher drains the buffer and exits.
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		close(s.out)
	})
}

type batchResponse struct {
	Accepted int    `json:"accepted"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// Handler accepts one POST body holding a JSON array of raw logs. Logs
// with no registered decoder are counted and skipped; a malformed payload
// fails the batch at that position so the gateway can redeliver it.
func (s *Source) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}

		var raws []event.RawLog
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodyBytes))
		if err := dec.Decode(&raws); err != nil {
			writeBatchResponse(w, http.StatusBadRequest, batchResponse{
				Error: fmt.Sprintf("decode batch: %v", err),
			})
			return
		}

		metrics.IngestBatchesTotal.Inc()

		var resp batchResponse
		for i, raw := range raws {
			ev, err := event.Decode(raw)
			if err != nil {
				var unknown *event.ErrUnknownEvent
				if errors.As(err, &unknown) {
					metrics.IngestEventsTotal.WithLabelValues("unknown").Inc()
					s.logger.Warn("unknown event name, skipping",
						"event", unknown.EventName,
						"tx_hash", raw.TxHash,
						"log_index", raw.LogIndex,
					)
					resp.Skipped++
					continue
				}
				metrics.IngestEventsTotal.WithLabelValues("invalid").Inc()
				s.logger.Error("malformed log payload",
					"event", raw.EventName,
					"tx_hash", raw.TxHash,
					"log_index", raw.LogIndex,
					"error", err,
				)
				resp.Error = fmt.Sprintf("log %d: %v", i, err)
				writeBatchResponse(w, http.StatusBadRequest, resp)
				return
			}

			select {
			case s.out <- ev:
				metrics.IngestEventsTotal.WithLabelValues("accepted").Inc()
				resp.Accepted++
			case <-r.Context().Done():
				// Gateway gave up; anything already enqueued will be
				// redelivered and absorbed as replay.
				writeBatchResponse(w, http.StatusServiceUnavailable, batchResponse{
					Accepted: resp.Accepted,
					Skipped:  resp.Skipped,
					Error:    "delivery cancelled",
				})
				return
			}
		}

		writeBatchResponse(w, http.StatusOK, resp)
	})
}

func writeBatchResponse(w http.ResponseWriter, status int, resp batchResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
