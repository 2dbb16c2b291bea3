package gcpclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"contractseal/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestClient_AccessSecret(t *testing.T) {
	const token = "token-123"
	projectID := "project-1"
	secretID := "hashing-secret"
	payload := []byte("hello")

	var calls []string
	client := New("https://secretmanager.example", projectID, token)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				t.Fatalf("unexpected auth header: %s", r.Header.Get("Authorization"))
			}
			calls = append(calls, r.Method+" "+r.URL.Path)
			switch r.URL.Path {
			case "/v1/projects/" + projectID + "/secrets/" + secretID + "/versions/latest:access",
				"/v1/projects/" + projectID + "/secrets/" + secretID + "/versions/3:access":
				resp := map[string]any{
					"payload": map[string]string{
						"data": base64.StdEncoding.EncodeToString(payload),
					},
				}
				body, _ := json.Marshal(resp)
				return &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewReader(body)),
					Header:     make(http.Header),
				}, nil
			default:
				return &http.Response{
					StatusCode: http.StatusNotFound,
					Body:       io.NopCloser(bytes.NewReader(nil)),
					Header:     make(http.Header),
				}, nil
			}
		}),
	}
	out, err := client.AccessSecret(context.Background(), secretID)
	if err != nil {
		t.Fatalf("access secret: %v", err)
	}
	if string(out) != string(payload) {
		t.Fatalf("unexpected payload: %s", string(out))
	}
	if _, err := client.AccessSecretVersion(context.Background(), secretID, "3"); err != nil {
		t.Fatalf("access pinned version: %v", err)
	}
	if _, err := client.AccessSecret(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing secret")
	}
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
}

func TestNewFromConfigRequiresConfig(t *testing.T) {
	cfg := config.Config{}
	if _, err := NewFromConfig(cfg); err == nil {
		t.Fatal("expected error for missing gcp config")
	}
}
