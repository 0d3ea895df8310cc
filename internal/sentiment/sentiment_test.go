package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *TextAnalyticsClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewTextAnalyticsClient(append([]Option{WithEndpoint(srv.URL), WithKey("secret")}, opts...)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestNewTextAnalyticsClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewTextAnalyticsClient(WithKey("k")); !errors.Is(err, ErrMissingEndpoint) {
		t.Errorf("expected ErrMissingEndpoint, got %v", err)
	}
}

func TestScore_WireContract(t *testing.T) {
	var gotBody map[string]any
	var gotKey, gotMethod, gotContentType string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get(SubscriptionKeyHeader)
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"documents":[{"id":"1","score":0.73}],"errors":[]}`)
	})

	score, err := c.Score(context.Background(), "I feel fine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.73 {
		t.Errorf("expected 0.73, got %v", score)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotKey != "secret" {
		t.Errorf("expected subscription key header, got %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotContentType)
	}
	docs, ok := gotBody["documents"].([]any)
	if !ok || len(docs) != 1 {
		t.Fatalf("expected one document, got %v", gotBody)
	}
	doc := docs[0].(map[string]any)
	if doc["language"] != "en" || doc["id"] != "1" || doc["text"] != "I feel fine" {
		t.Errorf("unexpected document %v", doc)
	}
}

func TestScore_LanguageOption(t *testing.T) {
	var lang string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req request
		_ = json.NewDecoder(r.Body).Decode(&req)
		lang = req.Documents[0].Language
		io.WriteString(w, `{"documents":[{"score":0.5}]}`)
	}, WithLanguage("de"))
	if _, err := c.Score(context.Background(), "gut"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lang != "de" {
		t.Errorf("expected language de, got %q", lang)
	}
}

func TestScore_ZeroScoreIsValid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"documents":[{"score":0}]}`)
	})
	score, err := c.Score(context.Background(), "awful")
	if err != nil || score != 0 {
		t.Errorf("expected 0 with no error, got %v, %v", score, err)
	}
}

func TestScore_MalformedResponses(t *testing.T) {
	for name, body := range map[string]string{
		"no documents":  `{"documents":[]}`,
		"missing field": `{}`,
		"missing score": `{"documents":[{"id":"1"}]}`,
		"not json":      `<html>oops</html>`,
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			})
			if _, err := c.Score(context.Background(), "x"); !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestScore_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	})
	_, err := c.Score(context.Background(), "x")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected StatusError 401, got %v", err)
	}
}

func TestScore_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	start := time.Now()
	if _, err := c.Score(context.Background(), "x"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not enforced")
	}
}
