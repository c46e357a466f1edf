package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/item"
	"github.com/JakeFAU/cardshot/internal/logging"
	"github.com/JakeFAU/cardshot/internal/progress"
)

// Phase is the coarse state of a run as reported to operators.
type Phase string

// Phases a run moves through.
const (
	PhaseReconciling Phase = "reconciling"
	PhaseCapturing   Phase = "capturing"
	PhaseDone        Phase = "done"
)

// ProgressHandler exposes the state of the current run. It starts in
// PhaseReconciling and learns about the pending total once Attach is called.
type ProgressHandler struct {
	mu      sync.RWMutex
	runID   uuid.UUID
	started time.Time
	phase   Phase
	counter *progress.Counter
	aborted []item.ID
	logger  *zap.Logger
}

// NewProgressHandler returns a handler for run runID.
func NewProgressHandler(runID [16]byte, started time.Time, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		runID:   uuid.UUID(runID),
		started: started,
		phase:   PhaseReconciling,
		logger:  logging.OrNop(logger),
	}
}

// Attach switches the run to PhaseCapturing and reports counts from c.
func (h *ProgressHandler) Attach(c *progress.Counter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counter = c
	h.phase = PhaseCapturing
}

// Finish marks the run done and records the items it gave up on.
func (h *ProgressHandler) Finish(aborted []item.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phase = PhaseDone
	h.aborted = append([]item.ID(nil), aborted...)
	sort.Slice(h.aborted, func(i, j int) bool { return h.aborted[i].Less(h.aborted[j]) })
}

// Routes mounts the handler on r.
func (h *ProgressHandler) Routes(r chi.Router) {
	r.Get("/progress", h.GetProgress)
	r.Get("/progress/aborted", h.GetAborted)
}

type progressDTO struct {
	RunID     string  `json:"run_id"`
	Phase     Phase   `json:"phase"`
	Captured  int64   `json:"captured"`
	Total     int64   `json:"total"`
	Aborted   int     `json:"aborted"`
	ElapsedMs int64   `json:"elapsed_ms"`
	Percent   float64 `json:"percent"`
}

// GetProgress handles GET /progress.
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	dto := progressDTO{
		RunID:     h.runID.String(),
		Phase:     h.phase,
		Aborted:   len(h.aborted),
		ElapsedMs: time.Since(h.started).Milliseconds(),
	}
	if h.counter != nil {
		dto.Captured = h.counter.Captured()
		dto.Total = h.counter.Total()
	}
	h.mu.RUnlock()
	if dto.Total > 0 {
		dto.Percent = float64(dto.Captured) * 100 / float64(dto.Total)
	}
	h.writeJSON(w, http.StatusOK, dto)
}

// GetAborted handles GET /progress/aborted. It answers 409 until the run is
// done, since aborts are only final then.
func (h *ProgressHandler) GetAborted(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	phase := h.phase
	ids := make([]string, len(h.aborted))
	for i, id := range h.aborted {
		ids[i] = id.String()
	}
	h.mu.RUnlock()
	if phase != PhaseDone {
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "run still in progress"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"aborted": ids})
}

func (h *ProgressHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("write JSON failed", zap.Error(err))
	}
}
