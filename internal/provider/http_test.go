package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/canvaspipe/internal/ir"
	"github.com/roach88/canvaspipe/internal/registry"
)

func TestHTTPGenerate(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"items":[{"name":"Churn","rank":1},{"name":"Pricing","rank":2}]}`))
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL+"/api/", WithAPIKey("secret"))
	items, err := h.Generate(context.Background(), Request{
		Stage: registry.Pains,
		Scope: ir.Scope{ProjectID: "p1", SegmentID: "s1"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Pricing", items[1].Text("name"))
	assert.Equal(t, ir.IRInt(2), items[1]["rank"])
	assert.Equal(t, registry.Pains, got.Stage)
	assert.Equal(t, "s1", got.Scope.SegmentID)
}

func TestHTTPRegenerateField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/regenerate-field", r.URL.Path)
		w.Write([]byte(`{"value":"Sharper title"}`))
	}))
	defer srv.Close()

	v, err := NewHTTP(srv.URL).RegenerateField(context.Background(), FieldRequest{
		Field:   "title",
		Current: ir.IRString("Title"),
	})
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("Sharper title"), v)
}

func TestHTTPRegenerateFieldMissingValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).RegenerateField(context.Background(), FieldRequest{Field: "title"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no value")
}

func TestHTTPTranslateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([]string, len(req.Texts))
		for i, s := range req.Texts {
			out[i] = req.Language + ":" + s
		}
		json.NewEncoder(w).Encode(translateResponse{Texts: out})
	}))
	defer srv.Close()

	out, err := NewHTTP(srv.URL).TranslateText(context.Background(), []string{"hello", "world"}, "fr")
	require.NoError(t, err)
	assert.Equal(t, []string{"fr:hello", "fr:world"}, out)
}

func TestHTTPTranslateTextLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"texts":["only one"]}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).TranslateText(context.Background(), []string{"a", "b"}, "fr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1 texts for 2 inputs")
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).Generate(context.Background(), Request{Stage: registry.Pains})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL, WithHTTPTimeout(50*time.Millisecond))
	_, err := h.TranslateText(context.Background(), []string{"a"}, "fr")
	require.Error(t, err)
}

func TestWithHTTPTimeoutOption(t *testing.T) {
	h := NewHTTP("http://example.invalid", WithHTTPTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, h.httpClient.Timeout)
	assert.Equal(t, DefaultHTTPTimeout, NewHTTP("x").httpClient.Timeout)
}

func TestWithHTTPTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: 30 * time.Second}

	h := NewHTTP("http://example.invalid", WithHTTPClient(shared), WithHTTPTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, h.httpClient.Timeout)
	assert.Equal(t, 30*time.Second, shared.Timeout)
	assert.NotSame(t, shared, h.httpClient)

	other := NewHTTP("http://example.invalid", WithHTTPClient(shared))
	assert.Same(t, shared, other.httpClient)
	assert.Equal(t, 30*time.Second, other.httpClient.Timeout)
}
