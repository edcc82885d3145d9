package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mneme/internal/domain"
	"mneme/internal/reasoning"
)

type stubTurner struct {
	outcome domain.TurnOutcome
	err     error
	lastReq reasoning.TurnRequest
}

func (s *stubTurner) RunTurn(ctx context.Context, req reasoning.TurnRequest) (domain.TurnOutcome, error) {
	s.lastReq = req
	return s.outcome, s.err
}

func TestPostEvent_BadRequestWhenBodyMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewEventsHandler(zap.NewNop(), &stubTurner{})
	r := gin.New()
	r.POST("/events", h.PostEvent)

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(`{"conversation_id":"c1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostEvent_ValidRequestDispatchesToLoop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &stubTurner{outcome: domain.TurnOutcome{FinalText: "hello"}}
	h := NewEventsHandler(zap.NewNop(), stub)
	r := gin.New()
	r.POST("/events", h.PostEvent)

	body := `{"conversation_id":"c1","author_ref":"u1","body":"hi there"}`
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "c1", stub.lastReq.Event.ConversationID)
	require.Equal(t, domain.EventUserMessage, stub.lastReq.Event.Kind)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	require.Contains(t, decoded, "outcome")
}

func TestPostEvent_LoopErrorReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &stubTurner{err: context.DeadlineExceeded}
	h := NewEventsHandler(zap.NewNop(), stub)
	r := gin.New()
	r.POST("/events", h.PostEvent)

	body := `{"conversation_id":"c1","body":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPostEvent_TechnicalChannelIsRecognised(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &stubTurner{}
	h := NewEventsHandler(zap.NewNop(), stub)
	r := gin.New()
	r.POST("/events", h.PostEvent)

	body := `{"conversation_id":"c1","body":"hi","channel":"technical"}`
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, reasoning.ChannelTechnical, stub.lastReq.Channel)
}
