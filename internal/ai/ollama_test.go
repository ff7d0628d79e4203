package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOllamaClient_GenerateStructuredPassesFormat(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"{\"story_content\":\"hi\"}"},"done":true,"prompt_eval_count":12,"eval_count":7}` + "\n"))
	}))
	defer srv.Close()

	client, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL + "/v1/", Model: "llama3.2", Timeout: 5 * time.Second, Retry: fastRetry()}, zap.NewNop())
	require.NoError(t, err)

	raw, err := client.GenerateStructured(context.Background(), "sys", "user", JSONSchema{
		Name:   "story_chapter",
		Schema: json.RawMessage(`{"type":"object","required":["story_content"]}`),
	}, GenerationParams{Temperature: Float64(0.2), MaxTokens: Int(100)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"story_content":"hi"}`, string(raw))

	assert.Equal(t, false, body["stream"])
	format := body["format"].(map[string]interface{})
	assert.Equal(t, "object", format["type"])
	options := body["options"].(map[string]interface{})
	assert.InDelta(t, 0.2, options["temperature"], 0.001)
	assert.EqualValues(t, 100, options["num_predict"])
}

func TestNewOllamaClient_RequiresModel(t *testing.T) {
	_, err := NewOllamaClient(OllamaConfig{BaseURL: "http://localhost:11434"}, zap.NewNop())
	assert.Error(t, err)
}
