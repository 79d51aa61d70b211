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
		{"host with port", "ghost.internal:2368", "ghost.internal"},
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

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if admissionTotal == nil || rewritesTotal == nil || decodeFailuresTotal == nil ||
		pagesSavedTotal == nil || bytesSavedTotal == nil || fetchDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(admissionTotal.WithLabelValues("redirect", "alternate_remap"))
	ObserveAdmission("redirect", "alternate_remap")
	if got := testutil.ToFloat64(admissionTotal.WithLabelValues("redirect", "alternate_remap")); got != before+1 {
		t.Errorf("admission counter = %f, want %f", got, before+1)
	}

	before = testutil.ToFloat64(rewritesTotal.WithLabelValues("css"))
	ObserveRewrite("css")
	if got := testutil.ToFloat64(rewritesTotal.WithLabelValues("css")); got != before+1 {
		t.Errorf("rewrite counter = %f, want %f", got, before+1)
	}

	before = testutil.ToFloat64(decodeFailuresTotal.WithLabelValues("utf-8"))
	ObserveDecodeFailure("utf-8")
	if got := testutil.ToFloat64(decodeFailuresTotal.WithLabelValues("utf-8")); got != before+1 {
		t.Errorf("decode failure counter = %f, want %f", got, before+1)
	}

	beforeBytes := testutil.ToFloat64(bytesSavedTotal.WithLabelValues("metrics.test"))
	ObserveSave("https://Metrics.test/a", "saved", 128)
	ObserveSave("https://metrics.test/b", "saved", 0)
	if got := testutil.ToFloat64(pagesSavedTotal.WithLabelValues("metrics.test", "saved")); got < 2 {
		t.Errorf("pages saved = %f, want at least 2", got)
	}
	if got := testutil.ToFloat64(bytesSavedTotal.WithLabelValues("metrics.test")); got != beforeBytes+128 {
		t.Errorf("bytes saved = %f, want %f", got, beforeBytes+128)
	}

	ObserveFetch("https://metrics.test/", 20*time.Millisecond)
	if got := testutil.CollectAndCount(fetchDurationSeconds); got == 0 {
		t.Error("expected fetch duration to be observed")
	}

	ObserveRateLimitDelay("https://metrics.test/", 50*time.Millisecond)
	if got := testutil.CollectAndCount(rateLimitDelaySeconds); got == 0 {
		t.Error("expected rate limit delay to be observed")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://ghost.test:2368", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
