package chatkit

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// maxErrorBody bounds how much of an error payload is read and kept.
const maxErrorBody = 4096

// TransportRequest is one outbound HTTP exchange built by a provider adapter.
type TransportRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// TransportResponse is the raw answer to a TransportRequest. The caller
// owns Body and must close it.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Transport performs HTTP exchanges on behalf of the client. It must honor
// ctx cancellation, including while the response body is being read.
type Transport interface {
	Do(ctx context.Context, req *TransportRequest) (*TransportResponse, error)
}

// HTTPTransport is a Transport backed by an *http.Client.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport using client, or
// http.DefaultClient when client is nil.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client}
}

// Do implements Transport. Network failures are returned as
// *TransportError; HTTP status handling is left to the caller.
func (t *HTTPTransport) Do(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return &TransportResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

// checkStatus turns a non-2xx response into a *TransportError and closes
// its body.
func checkStatus(resp *TransportResponse) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return parseErrorPayload(resp.StatusCode, body)
}

// parseErrorPayload extracts the error classification from an OpenAI or
// Anthropic error body. Both nest it under "error"; unknown shapes keep
// the raw text as the message.
func parseErrorPayload(status int, body []byte) *TransportError {
	e := &TransportError{StatusCode: status, Body: body}
	if gjson.ValidBytes(body) {
		result := gjson.ParseBytes(body)
		errObj := result.Get("error")
		if errObj.Type == gjson.String {
			e.Message = errObj.String()
		} else {
			e.Type = errObj.Get("type").String()
			e.Code = errObj.Get("code").String()
			e.Message = errObj.Get("message").String()
		}
		if e.Message == "" {
			e.Message = result.Get("message").String()
		}
	}
	if e.Message == "" {
		e.Message = string(bytes.TrimSpace(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
