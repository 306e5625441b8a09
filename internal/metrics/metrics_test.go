package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if pagesFetchedTotal == nil || fetchBytesTotal == nil ||
		recordsTotal == nil || upsertsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveFetch("http://test.example/page", "ok", 128, 50*time.Millisecond)
	if val := testutil.ToFloat64(pagesFetchedTotal.WithLabelValues("test.example", "ok")); val != 1 {
		t.Errorf("expected pagesFetchedTotal to be 1, got %f", val)
	}

	ObserveRecords(2, 1)
	if val := testutil.ToFloat64(recordsTotal.WithLabelValues("accepted")); val != 2 {
		t.Errorf("expected 2 accepted records, got %f", val)
	}
	if val := testutil.ToFloat64(recordsTotal.WithLabelValues("rejected")); val != 1 {
		t.Errorf("expected 1 rejected record, got %f", val)
	}

	ObserveUpsert()
	if val := testutil.ToFloat64(upsertsTotal); val != 1 {
		t.Errorf("expected 1 upsert, got %f", val)
	}

	IncActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != 1 {
		t.Errorf("expected 1 active worker, got %f", val)
	}
	DecActiveWorkers()
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
