package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mneme/internal/budget"
	"mneme/internal/consolidation"
	"mneme/internal/domain"
	"mneme/internal/organism"
	"mneme/internal/reasoning"
)

// Turner is the narrow surface EventsHandler needs from the reasoning
// loop, mirroring ToolGate/BudgetChecker's own narrow-interface pattern so
// this package doesn't have to import reasoning.Loop's full dependency
// graph just to accept requests.
type Turner interface {
	RunTurn(ctx context.Context, req reasoning.TurnRequest) (domain.TurnOutcome, error)
}

// EventsHandler ingests an external event (a chat-adapter message, a
// perception update) and runs it through one reasoning-loop turn.
type EventsHandler struct {
	logger *zap.Logger
	loop   Turner
}

func NewEventsHandler(logger *zap.Logger, loop Turner) *EventsHandler {
	return &EventsHandler{logger: logger, loop: loop}
}

type postEventRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	AuthorRef      string `json:"author_ref"`
	Body           string `json:"body" binding:"required"`
	Channel        string `json:"channel"`
}

// PostEvent handles POST /events.
func (h *EventsHandler) PostEvent(c *gin.Context) {
	var req postEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post event request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	channel := reasoning.ChannelCasual
	if req.Channel == string(reasoning.ChannelTechnical) {
		channel = reasoning.ChannelTechnical
	}

	event := domain.Event{
		Kind:           domain.EventUserMessage,
		ConversationID: req.ConversationID,
		AuthorRef:      req.AuthorRef,
		Body:           req.Body,
		Timestamp:      time.Now().UTC(),
	}

	outcome, err := h.loop.RunTurn(c.Request.Context(), reasoning.TurnRequest{
		Event:   event,
		Channel: channel,
	})
	if err != nil {
		h.logger.Error("turn failed", zap.Error(err), zap.String("conversation_id", req.ConversationID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

// StatusHandler reports the organism's current state and budget posture.
type StatusHandler struct {
	logger  *zap.Logger
	store   *organism.Store
	budgets *budget.Tracker
}

func NewStatusHandler(logger *zap.Logger, store *organism.Store, budgets *budget.Tracker) *StatusHandler {
	return &StatusHandler{logger: logger, store: store, budgets: budgets}
}

// GetStatus handles GET /status.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	snapshot, err := h.store.Snapshot(ctx)
	if err != nil {
		h.logger.Error("status: loading snapshot failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load organism state"})
		return
	}

	resp := gin.H{"state": snapshot}

	if h.budgets != nil {
		budgetStatus, err := h.budgets.Status(ctx)
		if err != nil {
			h.logger.Warn("status: loading budget failed", zap.Error(err))
		} else {
			resp["budget"] = budgetStatus
		}
	}

	c.JSON(http.StatusOK, resp)
}

// SleepHandler runs a consolidation cycle on demand (the HTTP equivalent
// of mnemectl's `sleep` command).
type SleepHandler struct {
	logger        *zap.Logger
	consolidator  *consolidation.Consolidator
}

func NewSleepHandler(logger *zap.Logger, consolidator *consolidation.Consolidator) *SleepHandler {
	return &SleepHandler{logger: logger, consolidator: consolidator}
}

type postSleepRequest struct {
	PeriodStart time.Time `json:"period_start"`
}

// PostSleep handles POST /sleep. It passes no reinforcedEpisodeIDs to
// Consolidator.Run, so every episode decays plainly. The daemon schedules
// no sleep cycle of its own: this endpoint and mnemectl's `sleep` command
// are the only paths that run consolidation.
func (h *SleepHandler) PostSleep(c *gin.Context) {
	var req postSleepRequest
	_ = c.ShouldBindJSON(&req) // period_start is optional; zero value defaults below

	periodStart := req.PeriodStart
	if periodStart.IsZero() {
		periodStart = time.Now().UTC().Add(-24 * time.Hour)
	}

	report, err := h.consolidator.Run(c.Request.Context(), periodStart, nil)
	if err != nil {
		h.logger.Error("sleep cycle failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "consolidation failed", "partial_report": report})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}
