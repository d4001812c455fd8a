package chatkit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// MaxSpeechInput is the longest text, in characters, one speech request
	// may synthesize.
	MaxSpeechInput = 4096
	MinSpeechSpeed = 0.25
	MaxSpeechSpeed = 4.0
)

// SpeechRequest asks for text to be synthesized into audio.
type SpeechRequest struct {
	Model        string
	Input        string
	Voice        string
	Format       string // mp3, opus, aac, flac, wav or pcm; empty means mp3
	Instructions string
	// Speed is the playback rate; zero keeps the provider default.
	Speed float64
}

// Validate checks the request before it is sent.
func (r SpeechRequest) Validate() error {
	switch {
	case r.Model == "":
		return errors.New("chatkit: speech model not set")
	case r.Voice == "":
		return errors.New("chatkit: speech voice not set")
	case r.Input == "":
		return errors.New("chatkit: speech input not set")
	case utf8.RuneCountInString(r.Input) > MaxSpeechInput:
		return fmt.Errorf("chatkit: speech input exceeds %d characters", MaxSpeechInput)
	case r.Speed != 0 && (r.Speed < MinSpeechSpeed || r.Speed > MaxSpeechSpeed):
		return fmt.Errorf("chatkit: speech speed %g outside [%g, %g]", r.Speed, MinSpeechSpeed, MaxSpeechSpeed)
	}
	return nil
}

// TranscriptionRequest uploads audio to be transcribed.
type TranscriptionRequest struct {
	Model string
	// Filename names the upload; its extension tells the provider the
	// audio encoding.
	Filename    string
	Audio       io.Reader
	Language    string // ISO-639-1
	Prompt      string
	Format      string // json, text, srt, verbose_json or vtt; empty means json
	Temperature float32
}

// Validate checks the request before it is sent.
func (r TranscriptionRequest) Validate() error {
	switch {
	case r.Model == "":
		return errors.New("chatkit: transcription model not set")
	case r.Audio == nil:
		return errors.New("chatkit: transcription audio not set")
	case r.Filename == "":
		return errors.New("chatkit: transcription filename not set")
	}
	return nil
}

// Transcription is the text recognized in an audio upload. For the srt
// and vtt formats Text holds the subtitle document.
type Transcription struct {
	Text     string
	Language string
	Duration float64
}

// audioTypes maps the upload extensions the transcription endpoint accepts
// to their media types.
var audioTypes = map[string]string{
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".mp4":  "audio/mp4",
	".mpeg": "audio/mpeg",
	".mpga": "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
}

func audioType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Speaker is implemented by providers exposing text-to-speech.
type Speaker interface {
	NewSpeechRequest(endpoint Endpoint, req SpeechRequest) (*TransportRequest, error)
}

// Transcriber is implemented by providers exposing speech-to-text.
type Transcriber interface {
	NewTranscriptionRequest(endpoint Endpoint, req TranscriptionRequest) (*TransportRequest, error)
	DecodeTranscription(body io.Reader, format string) (*Transcription, error)
}

// NewSpeechRequest implements Speaker.
func (p OpenAI) NewSpeechRequest(endpoint Endpoint, req SpeechRequest) (*TransportRequest, error) {
	body, err := json.Marshal(openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.Model),
		Input:          req.Input,
		Voice:          openai.SpeechVoice(req.Voice),
		Instructions:   req.Instructions,
		ResponseFormat: openai.SpeechResponseFormat(req.Format),
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("chatkit/openai: encoding speech request: %w", err)
	}
	tr := newWireRequest(p.endpoint(endpoint), "/audio/speech", body)
	p.authorize(tr, endpoint)
	return tr, nil
}

// NewTranscriptionRequest implements Transcriber. The audio is read fully
// into a multipart form.
func (p OpenAI) NewTranscriptionRequest(endpoint Endpoint, req TranscriptionRequest) (*TransportRequest, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part := make(textproto.MIMEHeader)
	part.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(req.Filename)))
	part.Set("Content-Type", audioType(req.Filename))
	w, err := form.CreatePart(part)
	if err != nil {
		return nil, fmt.Errorf("chatkit/openai: encoding transcription request: %w", err)
	}
	if _, err := io.Copy(w, req.Audio); err != nil {
		return nil, fmt.Errorf("chatkit/openai: reading audio: %w", err)
	}

	fields := [][2]string{
		{"model", req.Model},
		{"language", req.Language},
		{"prompt", req.Prompt},
		{"response_format", req.Format},
	}
	if req.Temperature != 0 {
		fields = append(fields, [2]string{"temperature", strconv.FormatFloat(float64(req.Temperature), 'f', -1, 32)})
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := form.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("chatkit/openai: encoding transcription request: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("chatkit/openai: encoding transcription request: %w", err)
	}

	tr := newWireRequest(p.endpoint(endpoint), "/audio/transcriptions", buf.Bytes())
	tr.Header.Set("Content-Type", form.FormDataContentType())
	p.authorize(tr, endpoint)
	return tr, nil
}

// DecodeTranscription implements Transcriber.
func (OpenAI) DecodeTranscription(body io.Reader, format string) (*Transcription, error) {
	audio := openai.AudioRequest{Format: openai.AudioResponseFormat(format)}
	if !audio.HasJSONResponse() {
		text, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("chatkit/openai: reading transcription: %w", err)
		}
		return &Transcription{Text: string(text)}, nil
	}
	var resp openai.AudioResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("chatkit/openai: decoding transcription: %w", err)
	}
	return &Transcription{Text: resp.Text, Language: resp.Language, Duration: resp.Duration}, nil
}
