package chatkit

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thecxx/chatkit/ratelimit"
)

func TestSpeechRequestValidate(t *testing.T) {
	valid := SpeechRequest{Model: "tts-1", Voice: "alloy", Input: "hello"}

	tests := []struct {
		name    string
		mutate  func(r *SpeechRequest)
		wantErr string
	}{
		{name: "valid", mutate: func(r *SpeechRequest) {}},
		{name: "slowest", mutate: func(r *SpeechRequest) { r.Speed = MinSpeechSpeed }},
		{name: "fastest", mutate: func(r *SpeechRequest) { r.Speed = MaxSpeechSpeed }},
		{name: "longest input", mutate: func(r *SpeechRequest) { r.Input = strings.Repeat("ż", MaxSpeechInput) }},
		{name: "no model", mutate: func(r *SpeechRequest) { r.Model = "" }, wantErr: "model not set"},
		{name: "no voice", mutate: func(r *SpeechRequest) { r.Voice = "" }, wantErr: "voice not set"},
		{name: "no input", mutate: func(r *SpeechRequest) { r.Input = "" }, wantErr: "input not set"},
		{name: "input too long", mutate: func(r *SpeechRequest) { r.Input = strings.Repeat("a", MaxSpeechInput+1) }, wantErr: "exceeds 4096"},
		{name: "too slow", mutate: func(r *SpeechRequest) { r.Speed = 0.1 }, wantErr: "outside"},
		{name: "too fast", mutate: func(r *SpeechRequest) { r.Speed = 4.5 }, wantErr: "outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestClientSpeech(t *testing.T) {
	audio := []byte{0xff, 0xfb, 0x90, 0x64, 0x00}
	srv := newFakeServer(t, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	})
	client := NewOpenAI("gpt-4o", "sk-test", WithBaseURL(srv.URL))

	got, err := client.Speech(context.Background(), SpeechRequest{
		Model:  "tts-1-hd",
		Input:  "Bonjour tout le monde",
		Voice:  "onyx",
		Format: "mp3",
		Speed:  1.2,
	})
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	assert.Equal(t, "Bearer sk-test", srv.headers[0].Get("Authorization"))
	body := srv.body(0)
	assert.Equal(t, "tts-1-hd", body.Get("model").String())
	assert.Equal(t, "Bonjour tout le monde", body.Get("input").String())
	assert.Equal(t, "onyx", body.Get("voice").String())
	assert.Equal(t, "mp3", body.Get("response_format").String())
	assert.InDelta(t, 1.2, body.Get("speed").Float(), 1e-9)
	assert.False(t, body.Get("instructions").Exists())
}

func TestClientSpeechRejectedLocally(t *testing.T) {
	srv := newFakeServer(t)
	client := NewOpenAI("gpt-4o", "", WithBaseURL(srv.URL))

	_, err := client.Speech(context.Background(), SpeechRequest{Model: "tts-1", Voice: "alloy", Input: strings.Repeat("a", MaxSpeechInput+1)})
	assert.ErrorContains(t, err, "exceeds")
	_, err = client.Speech(context.Background(), SpeechRequest{Model: "tts-1", Voice: "alloy", Input: "hi", Speed: 5})
	assert.ErrorContains(t, err, "outside")
	assert.EqualValues(t, 0, srv.hits.Load())

	_, err = NewAnthropic("claude-sonnet-4-5", "").Speech(context.Background(), SpeechRequest{Model: "tts-1", Voice: "alloy", Input: "hi"})
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = NewAnthropic("claude-sonnet-4-5", "").Transcribe(context.Background(), TranscriptionRequest{Model: "whisper-1", Filename: "a.mp3", Audio: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestClientTranscribe(t *testing.T) {
	audio := []byte("RIFF....WAVEfmt fake audio")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "pl", r.FormValue("language"))
		assert.Equal(t, "Schopenhauer, Nietzsche", r.FormValue("prompt"))
		assert.Equal(t, "0.2", r.FormValue("temperature"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "lecture.wav", header.Filename)
		assert.Equal(t, "audio/wav", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, audio, data)

		switch r.FormValue("response_format") {
		case "":
			assert.Empty(t, r.MultipartForm.Value["response_format"])
			_, _ = io.WriteString(w, `{"text":"Najszlachetniejsze zwierzęta"}`)
		case "verbose_json":
			_, _ = io.WriteString(w, `{"task":"transcribe","language":"polish","duration":12.5,"text":"Najszlachetniejsze zwierzęta","segments":[]}`)
		case "srt":
			_, _ = io.WriteString(w, "1\n00:00:00,000 --> 00:00:02,000\nNajszlachetniejsze zwierzęta\n")
		}
	}))
	defer srv.Close()
	client := NewOpenAI("gpt-4o", "sk-test", WithBaseURL(srv.URL))

	req := TranscriptionRequest{
		Model:       "whisper-1",
		Filename:    "/tmp/recordings/lecture.wav",
		Language:    "pl",
		Prompt:      "Schopenhauer, Nietzsche",
		Temperature: 0.2,
	}

	req.Audio = bytes.NewReader(audio)
	got, err := client.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, &Transcription{Text: "Najszlachetniejsze zwierzęta"}, got)

	req.Audio, req.Format = bytes.NewReader(audio), "verbose_json"
	got, err = client.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, &Transcription{Text: "Najszlachetniejsze zwierzęta", Language: "polish", Duration: 12.5}, got)

	req.Audio, req.Format = bytes.NewReader(audio), "srt"
	got, err = client.Transcribe(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, got.Text, "00:00:00,000 --> 00:00:02,000")
	assert.Empty(t, got.Language)
}

func TestOpenAITranscriptionRequest(t *testing.T) {
	tr, err := OpenAI{}.NewTranscriptionRequest(Endpoint{}, TranscriptionRequest{
		Model:    "whisper-1",
		Filename: "note.mp3",
		Audio:    strings.NewReader("ID3 fake"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/audio/transcriptions", tr.URL)

	mediaType, params, err := mime.ParseMediaType(tr.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	form, err := multipart.NewReader(bytes.NewReader(tr.Body), params["boundary"]).ReadForm(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"whisper-1"}, form.Value["model"])
	for _, field := range []string{"language", "prompt", "response_format", "temperature"} {
		assert.NotContains(t, form.Value, field)
	}
	require.Len(t, form.File["file"], 1)
	assert.Equal(t, "note.mp3", form.File["file"][0].Filename)
	assert.Equal(t, "audio/mpeg", form.File["file"][0].Header.Get("Content-Type"))
}

func TestClientAudioTakesOnePermit(t *testing.T) {
	srv := newFakeServer(t,
		func(w http.ResponseWriter) { _, _ = w.Write([]byte("audio")) },
		jsonReply(http.StatusOK, `{"text":"hi"}`),
	)
	limiter, err := ratelimit.New(ratelimit.Config{Capacity: 2, RefillRate: 0.01})
	require.NoError(t, err)
	client := NewOpenAI("gpt-4o", "", WithBaseURL(srv.URL), WithRateLimiter(limiter))

	_, err = client.Speech(context.Background(), SpeechRequest{Model: "tts-1", Voice: "alloy", Input: "hi"})
	require.NoError(t, err)
	assert.InDelta(t, 1, limiter.Available(), 0.01)

	_, err = client.Transcribe(context.Background(), TranscriptionRequest{Model: "whisper-1", Filename: "a.wav", Audio: strings.NewReader("x")})
	require.NoError(t, err)
	assert.InDelta(t, 0, limiter.Available(), 0.01)
	assert.True(t, strings.HasPrefix(srv.headers[1].Get("Content-Type"), "multipart/form-data"))
	assert.Equal(t, "hi", srv.body(0).Get("input").String())
}
