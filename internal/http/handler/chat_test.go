package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drew-quote-core/server/internal/agent/model"
	errx "github.com/drew-quote-core/server/internal/core/error"
	"github.com/drew-quote-core/server/internal/http/handler"
)

type fakeRunner struct {
	got  *model.TurnRequest
	resp *model.TurnResponse
	err  error
}

func (f *fakeRunner) Invoke(_ context.Context, in model.TurnRequest) (*model.TurnResponse, error) {
	f.got = &in
	return f.resp, f.err
}

func newEngine(h *handler.ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/chat", h.Chat)
	return router
}

func post(t *testing.T, router *gin.Engine, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func TestChatSuccess(t *testing.T) {
	runner := &fakeRunner{resp: &model.TurnResponse{
		Message:      "What kind of job?",
		State:        model.ConversationState{Phase: model.PhaseJobSelection, Messages: []model.Message{}},
		QuickReplies: []string{"Panel upgrade"},
	}}
	router := newEngine(handler.NewChatHandler(runner, nil))

	w, out := post(t, router, `{"userMessage":"hi","userId":"demo-user","userSettings":{"defaultLaborRate":95},"state":{"phase":"greeting","messages":[]}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "What kind of job?", out["message"])
	assert.Equal(t, []any{"Panel upgrade"}, out["quickReplies"])
	state, ok := out["state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "job_selection", state["phase"])

	require.NotNil(t, runner.got)
	assert.Equal(t, "hi", runner.got.UserMessage)
	assert.Equal(t, "demo-user", runner.got.UserID)
	require.NotNil(t, runner.got.UserSettings)
	assert.Equal(t, 95.0, *runner.got.UserSettings.DefaultLaborRate)
	require.NotNil(t, runner.got.State)
	assert.Equal(t, model.PhaseGreeting, runner.got.State.Phase)
}

func TestChatBadRequests(t *testing.T) {
	router := newEngine(handler.NewChatHandler(&fakeRunner{}, nil))
	for _, body := range []string{`{`, `{"userMessage":"   "}`, `{"userMessage": 12}`} {
		w, out := post(t, router, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, out["error"], errx.BadRequestMessage, body)
	}
}

func TestChatMissingCredentials(t *testing.T) {
	runner := &fakeRunner{}
	router := newEngine(handler.NewChatHandler(runner, errx.Config(errors.New("GEMINI_API_KEY is not set"))))

	w, out := post(t, router, `{"userMessage":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, out["error"], "GEMINI_API_KEY")
	assert.Nil(t, runner.got, "no partial processing")
}

func TestChatNilRunnerIsConfigError(t *testing.T) {
	router := newEngine(handler.NewChatHandler(nil, nil))
	w, _ := post(t, router, `{"userMessage":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChatUpstreamFailure(t *testing.T) {
	runner := &fakeRunner{err: errx.Upstream(errors.New("model timeout"))}
	router := newEngine(handler.NewChatHandler(runner, nil))

	w, out := post(t, router, `{"userMessage":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, out["error"], "model timeout")
}
