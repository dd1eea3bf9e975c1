package scancheck

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestVerify_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/scan/verify" {
			t.Fatalf("path = %s, want /api/scan/verify", r.URL.Path)
		}

		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Serial != "111122222223330000000000" {
			t.Fatalf("serial = %s", req.Serial)
		}
		if req.ScanDurationMS != 250 {
			t.Fatalf("scan_duration_ms = %d, want 250", req.ScanDurationMS)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Result{Valid: true}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.Verify(ctx, "111122222223330000000000", 250*time.Millisecond)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("valid = false, want true")
	}
}

func TestVerify_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Result{Valid: false, Reason: "reported stolen"}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	res, err := client.Verify(context.Background(), "111122222223330000000000", 0)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if res.Valid {
		t.Fatalf("valid = true, want false")
	}
	if res.Reason != "reported stolen" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestVerify_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(Result{Valid: true}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	res, err := client.Verify(context.Background(), "111122222223330000000000", 0)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("valid = false, want true")
	}
	if calls.Load() < 2 {
		t.Fatalf("calls = %d, want at least 2", calls.Load())
	}
}

func TestVerify_NotConfigured(t *testing.T) {
	var client *Client
	if _, err := client.Verify(context.Background(), "111122222223330000000000", 0); err == nil {
		t.Fatal("expected error for nil client")
	}
}
