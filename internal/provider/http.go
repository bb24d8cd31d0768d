package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/roach88/canvaspipe/internal/ir"
)

// DefaultHTTPTimeout bounds a single provider call.
const DefaultHTTPTimeout = 60 * time.Second

// HTTP talks to a content gateway exposing three JSON endpoints:
//
//	POST {base}/generate          Request           -> {"items": [object...]}
//	POST {base}/regenerate-field  FieldRequest      -> {"value": any}
//	POST {base}/translate         {texts, language} -> {"texts": [string...]}
type HTTP struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPOption configures an HTTP provider.
type HTTPOption func(*HTTP)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(h *HTTP) { h.apiKey = key }
}

// WithHTTPTimeout sets the per-call timeout. The provider keeps its own copy
// of the client, so a client passed through WithHTTPClient is not modified.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(h *HTTP) {
		c := *h.httpClient
		c.Timeout = timeout
		h.httpClient = &c
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.httpClient = c }
}

// NewHTTP creates a provider for the gateway at baseURL.
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type generateResponse struct {
	Items []ir.IRObject `json:"items"`
}

// Generate implements Generator.
func (h *HTTP) Generate(ctx context.Context, req Request) ([]ir.IRObject, error) {
	var out generateResponse
	if err := h.post(ctx, "generate", req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

type fieldResponse struct {
	Value json.RawMessage `json:"value"`
}

// RegenerateField implements FieldGenerator.
func (h *HTTP) RegenerateField(ctx context.Context, req FieldRequest) (ir.IRValue, error) {
	var out fieldResponse
	if err := h.post(ctx, "regenerate-field", req, &out); err != nil {
		return nil, err
	}
	if len(out.Value) == 0 {
		return nil, fmt.Errorf("regenerate-field: response has no value")
	}
	v, err := ir.UnmarshalIRValue(out.Value)
	if err != nil {
		return nil, fmt.Errorf("regenerate-field: %w", err)
	}
	return v, nil
}

type translateRequest struct {
	Texts    []string `json:"texts"`
	Language string   `json:"language"`
}

type translateResponse struct {
	Texts []string `json:"texts"`
}

// TranslateText implements Translator.
func (h *HTTP) TranslateText(ctx context.Context, texts []string, lang string) ([]string, error) {
	var out translateResponse
	if err := h.post(ctx, "translate", translateRequest{Texts: texts, Language: lang}, &out); err != nil {
		return nil, err
	}
	if len(out.Texts) != len(texts) {
		return nil, fmt.Errorf("translate: got %d texts for %d inputs", len(out.Texts), len(texts))
	}
	return out.Texts, nil
}

func (h *HTTP) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", path, err)
	}
	endpoint, err := neturl.JoinPath(h.baseURL, path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return apiError(path, resp.Status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

func apiError(path, status string, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	if msg == "" {
		return fmt.Errorf("%s: %s", path, status)
	}
	return fmt.Errorf("%s: %s: %s", path, status, msg)
}
