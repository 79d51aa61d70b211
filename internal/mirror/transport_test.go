package mirror

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingTransport struct {
	req    *http.Request
	status int
	header http.Header
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.req = req
	status, header := rt.status, rt.header
	if status == 0 {
		status = http.StatusOK
	}
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func TestFetchHeaderTransport(t *testing.T) {
	t.Parallel()

	base := &recordingTransport{}
	tr := &fetchHeaderTransport{base: base, fetchHost: "ghost:2368", hostHeader: "a.test", forwardedProto: "https"}

	req, err := http.NewRequest(http.MethodGet, "http://ghost:2368/about/", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if base.req.Host != "a.test" || base.req.Header.Get("X-Forwarded-Proto") != "https" {
		t.Fatalf("expected public host headers, got host=%q proto=%q", base.req.Host, base.req.Header.Get("X-Forwarded-Proto"))
	}
	if req.Host != "ghost:2368" || req.Header.Get("X-Forwarded-Proto") != "" {
		t.Fatal("original request must not be mutated")
	}

	other, err := http.NewRequest(http.MethodGet, "https://cdn.test/x.js", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.RoundTrip(other); err != nil {
		t.Fatal(err)
	}
	if base.req != other {
		t.Fatal("requests to other hosts must pass through untouched")
	}
}

func TestRedirectTransportHidesLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       int
		wantLocation string
		wantCaptured string
	}{
		{"moved permanently", http.StatusMovedPermanently, "", "/post/"},
		{"temporary redirect", http.StatusTemporaryRedirect, "", "/post/"},
		{"ok untouched", http.StatusOK, "/post/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			base := &recordingTransport{status: tt.status, header: http.Header{"Location": []string{"/post/"}}}
			tr := &redirectTransport{base: base}

			req, err := http.NewRequest(http.MethodGet, "http://a.test/post", nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := tr.RoundTrip(req)
			if err != nil {
				t.Fatal(err)
			}
			if got := resp.Header.Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
			if got := resp.Header.Get(redirectLocationHeader); got != tt.wantCaptured {
				t.Errorf("%s = %q, want %q", redirectLocationHeader, got, tt.wantCaptured)
			}
		})
	}
}

func TestRedirectTransportClientDoesNotFollow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/post" {
			http.Redirect(w, r, "/post/", http.StatusMovedPermanently)
			return
		}
		t.Errorf("client followed the redirect to %s", r.URL.Path)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &redirectTransport{base: http.DefaultTransport}}
	resp, err := client.Get(srv.URL + "/post")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", resp.StatusCode)
	}
	if got := resp.Header.Get(redirectLocationHeader); got != "/post/" {
		t.Fatalf("captured location = %q", got)
	}
}
