package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thecxx/chatkit"
)

func TestClockTool(t *testing.T) {
	registry, err := chatkit.NewToolRegistry(clockTool())
	require.NoError(t, err)

	out, err := registry.Invoke(context.Background(), "current_time", json.RawMessage(`{"timezone":"UTC"}`))
	require.NoError(t, err)
	result, ok := out.(clockResult)
	require.True(t, ok)
	assert.Equal(t, "UTC", result.Timezone)
	assert.NotEmpty(t, result.Weekday)

	_, err = registry.Invoke(context.Background(), "current_time", json.RawMessage(`{"timezone":"Mars/Olympus"}`))
	assert.ErrorContains(t, err, "unknown time zone")

	_, err = registry.Invoke(context.Background(), "current_time", json.RawMessage(`{}`))
	assert.ErrorContains(t, err, "invalid arguments")
}

func TestReadPrompt(t *testing.T) {
	prompt, err := readPrompt(strings.NewReader("ignored"), []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", prompt)

	prompt, err = readPrompt(strings.NewReader("  from stdin\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", prompt)

	_, err = readPrompt(strings.NewReader("\n"), nil)
	assert.Error(t, err)
}

func TestLoadConfigFlags(t *testing.T) {
	t.Setenv("CHATKIT_MODEL", "")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	configFile, provider, model, baseURL = "", "", "gpt-4o", "http://localhost:8080/v1"
	t.Cleanup(func() { model, baseURL = "", "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
	assert.Equal(t, "sk-from-env", cfg.APIKey)
}

func TestRunSpeak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"voice":"onyx"`)
		_, _ = w.Write([]byte("ID3 audio"))
	}))
	defer srv.Close()

	t.Setenv("CHATKIT_MODEL", "")
	configFile, provider, model, baseURL = "", "openai", "tts-1", srv.URL
	voice, output, speed, format = "onyx", filepath.Join(t.TempDir(), "out.mp3"), 1.5, ""
	t.Cleanup(func() { provider, model, baseURL, voice, output, speed = "", "", "", "alloy", "speech.mp3", 0 })

	cmd := speakCmd()
	cmd.SetContext(context.Background())
	require.NoError(t, runSpeak(cmd, []string{"hello", "there"}))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "ID3 audio", string(data))

	speed = 9
	assert.ErrorContains(t, runSpeak(cmd, []string{"hello"}), "outside")
}
