package chatkit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// ModelInfo describes a model served by the provider.
type ModelInfo struct {
	ID          string
	DisplayName string
	OwnedBy     string
	CreatedAt   time.Time
}

// Embedding is the vector computed for one input.
type Embedding struct {
	Index  int
	Vector []float32
}

// ModelLister is implemented by providers exposing a model catalog.
type ModelLister interface {
	ModelsRequest(endpoint Endpoint, id string) (*TransportRequest, error)
	DecodeModels(body io.Reader, single bool) ([]ModelInfo, error)
}

// Embedder is implemented by providers exposing an embeddings endpoint.
type Embedder interface {
	EmbeddingsRequest(endpoint Endpoint, model string, inputs []string) (*TransportRequest, error)
	DecodeEmbeddings(body io.Reader) ([]Embedding, Usage, error)
}

func getRequest(endpoint Endpoint, path string) *TransportRequest {
	tr := newWireRequest(endpoint, path, nil)
	tr.Method = http.MethodGet
	tr.Header.Del("Content-Type")
	return tr
}

// ModelsRequest implements ModelLister. An empty id lists every model.
func (p OpenAI) ModelsRequest(endpoint Endpoint, id string) (*TransportRequest, error) {
	path := "/models"
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	tr := getRequest(p.endpoint(endpoint), path)
	p.authorize(tr, endpoint)
	return tr, nil
}

// DecodeModels implements ModelLister.
func (OpenAI) DecodeModels(body io.Reader, single bool) ([]ModelInfo, error) {
	var models []openai.Model
	if single {
		var m openai.Model
		if err := json.NewDecoder(body).Decode(&m); err != nil {
			return nil, fmt.Errorf("chatkit/openai: decoding model: %w", err)
		}
		models = append(models, m)
	} else {
		var list openai.ModelsList
		if err := json.NewDecoder(body).Decode(&list); err != nil {
			return nil, fmt.Errorf("chatkit/openai: decoding models: %w", err)
		}
		models = list.Models
	}
	infos := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		infos = append(infos, ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy, CreatedAt: time.Unix(m.CreatedAt, 0).UTC()})
	}
	return infos, nil
}

// EmbeddingsRequest implements Embedder.
func (p OpenAI) EmbeddingsRequest(endpoint Endpoint, model string, inputs []string) (*TransportRequest, error) {
	body, err := json.Marshal(openai.EmbeddingRequest{Input: inputs, Model: openai.EmbeddingModel(model)})
	if err != nil {
		return nil, fmt.Errorf("chatkit/openai: encoding embeddings request: %w", err)
	}
	tr := newWireRequest(p.endpoint(endpoint), "/embeddings", body)
	p.authorize(tr, endpoint)
	return tr, nil
}

// DecodeEmbeddings implements Embedder.
func (OpenAI) DecodeEmbeddings(body io.Reader) ([]Embedding, Usage, error) {
	var resp openai.EmbeddingResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, Usage{}, fmt.Errorf("chatkit/openai: decoding embeddings: %w", err)
	}
	embeddings := make([]Embedding, 0, len(resp.Data))
	for _, e := range resp.Data {
		embeddings = append(embeddings, Embedding{Index: e.Index, Vector: e.Embedding})
	}
	return embeddings, openAIUsage(&resp.Usage), nil
}

// ModelsRequest implements ModelLister.
func (p Anthropic) ModelsRequest(endpoint Endpoint, id string) (*TransportRequest, error) {
	path := "/v1/models"
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	tr := getRequest(p.endpoint(endpoint), path)
	p.authorize(tr, endpoint)
	return tr, nil
}

// DecodeModels implements ModelLister.
func (Anthropic) DecodeModels(body io.Reader, single bool) ([]ModelInfo, error) {
	var models []anthropic.ModelInfo
	if single {
		var m anthropic.ModelInfo
		if err := json.NewDecoder(body).Decode(&m); err != nil {
			return nil, fmt.Errorf("chatkit/anthropic: decoding model: %w", err)
		}
		models = append(models, m)
	} else {
		var page struct {
			Data []anthropic.ModelInfo `json:"data"`
		}
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return nil, fmt.Errorf("chatkit/anthropic: decoding models: %w", err)
		}
		models = page.Data
	}
	infos := make([]ModelInfo, 0, len(models))
	for _, m := range models {
		infos = append(infos, ModelInfo{ID: m.ID, DisplayName: m.DisplayName, OwnedBy: "anthropic", CreatedAt: m.CreatedAt})
	}
	return infos, nil
}
