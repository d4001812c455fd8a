package chatkit

import (
	"io"
	"net/http"
	"strings"
)

// Request is the provider-neutral form of one chat dispatch.
type Request struct {
	Model           string
	System          string
	Messages        []Message
	Tools           []Tool
	MaxTokens       *int
	Temperature     *float64
	TopP            *float64
	TopK            *int
	Stop            []string
	ReasoningEffort *string

	ResponseFormat   *ResponseFormat
	Seed             *int
	FrequencyPenalty *float64
	PresencePenalty  *float64
	LogitBias        map[string]int
	User             string
}

// ResponseFormat constrains the format of the answer.
type ResponseFormat struct {
	// Type is one of the constants.ResponseFormat* values.
	Type string
	// Name, Schema and Strict apply to constants.ResponseFormatJSONSchema.
	Name   string
	Schema any
	Strict bool
}

// Endpoint is where and how a provider is reached.
type Endpoint struct {
	BaseURL string
	APIKey  string
	// Header is added to every request.
	Header http.Header
}

// Completion is a decoded buffered response.
type Completion struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Meta         Meta
}

// Provider translates between the neutral types of this package and one
// vendor's wire format. Adapters never perform I/O themselves.
type Provider interface {
	// Name returns the provider identifier used in logs and metrics.
	Name() string

	// NewRequest builds the wire request for a chat dispatch.
	NewRequest(endpoint Endpoint, req *Request, stream bool) (*TransportRequest, error)

	// DecodeResponse decodes a buffered (non-streaming) response body.
	DecodeResponse(body io.Reader) (*Completion, error)

	// DecodeStream returns a function yielding one delta per call from a
	// streaming body. It returns a delta with Done set on the terminal
	// marker and io.EOF when the body ends.
	DecodeStream(body io.Reader) DeltaFunc
}

// newWireRequest fills the fields shared by every adapter.
func newWireRequest(endpoint Endpoint, path string, body []byte) *TransportRequest {
	header := make(http.Header)
	for key, values := range endpoint.Header {
		header[key] = append([]string(nil), values...)
	}
	header.Set("Content-Type", "application/json")
	return &TransportRequest{
		Method: http.MethodPost,
		URL:    strings.TrimSuffix(endpoint.BaseURL, "/") + path,
		Header: header,
		Body:   body,
	}
}
