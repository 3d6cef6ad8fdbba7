package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestComplete_ParsesChoiceAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"true crime channels\ntrue crime documentaries"}}],
			"usage":{"prompt_tokens":12,"total_tokens":30}
		}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	completion, err := c.Complete(context.Background(), ExpansionPrompt("true crime"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(completion.Text, "true crime channels") {
		t.Errorf("Text = %q, want it to contain the first query line", completion.Text)
	}
	if completion.PromptTokens != 12 || completion.TotalTokens != 30 {
		t.Errorf("usage = %+v, want PromptTokens=12 TotalTokens=30", completion)
	}
}

func TestComplete_SendsAuthorizationAndModel(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{"choices":[{"message":{"content":"x"}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "secret-key", Model: "custom-model"})
	if _, err := c.Complete(context.Background(), "prompt"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want Bearer secret-key", gotAuth)
	}
	if !strings.Contains(gotBody, "custom-model") {
		t.Errorf("body = %q, want it to carry the configured model", gotBody)
	}
}

func TestComplete_ProviderErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "status=429") {
		t.Errorf("err = %v, want it to mention status=429", err)
	}
}

func TestComplete_EmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected an error for empty choices")
	}
}

func TestNew_FallsBackToDefaults(t *testing.T) {
	c := New(Config{})
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want default %q", c.baseURL, DefaultBaseURL)
	}
	if c.model != DefaultModel {
		t.Errorf("model = %q, want default %q", c.model, DefaultModel)
	}
}
