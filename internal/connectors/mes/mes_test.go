package mes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNotifyNewCassette(t *testing.T) {
	var got request
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"body":{"status":"0","description":"registered"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/"}, zaptest.NewLogger(t))
	res, err := c.NotifyNewCassette(context.Background(), "C100", "ILCP")
	if err != nil {
		t.Fatalf("NotifyNewCassette failed: %v", err)
	}

	if path != "/"+MsgReceiveNewCassette {
		t.Errorf("Expected path /%s, got %s", MsgReceiveNewCassette, path)
	}
	if got.Body.CassetteID != "C100" || got.Header.UserID != "ILCP" {
		t.Errorf("Unexpected request: %+v", got)
	}
	if got.Header.TID == "" {
		t.Error("Expected request tid")
	}
	if !res.OK() || res.Description != "registered" {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestNotifyEmptiedNonZeroStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"body":{"status":"7","description":"cassette on hold"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	res, err := c.NotifyEmptied(context.Background(), "C100", "ILCP")
	if err != nil {
		t.Fatalf("NotifyEmptied failed: %v", err)
	}
	if res.OK() {
		t.Error("Expected non-zero status to fail")
	}
	if res.Code() != 7 {
		t.Errorf("Expected code 7, got %d", res.Code())
	}
}

func TestMalformedReplyDefaultsToEmpty(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"missing body", `{"header":{}}`},
		{"missing status", `{"body":{"description":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
			res, err := c.NotifyEmptied(context.Background(), "C100", "ILCP")
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if res.Status != "" {
				t.Errorf("Expected empty status, got %q", res.Status)
			}
			if res.OK() {
				t.Error("Expected empty status to translate to failure")
			}
		})
	}
}

func TestHTTPErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if _, err := c.NotifyNewCassette(context.Background(), "C100", "ILCP"); err == nil {
		t.Error("Expected error for HTTP 503")
	}
}

func TestName(t *testing.T) {
	if New(Config{}, nil).Name() != "mes" {
		t.Error("Expected connector name mes")
	}
}
