package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0.4.0", "0.4.0", 0},
		{"0.4.0", "v0.5.0", -1},
		{"1.0.0", "0.9.9", 1},
		{"0.4", "0.4.1", -1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCheckReportsNewerRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/repos/"+GitHubRepo+"/releases/latest") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.invalid/r","body":"Big release\nmore"}`))
	}))
	defer srv.Close()

	info, err := Check(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !info.UpdateAvailable || info.LatestVersion != "99.0.0" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.ReleaseNotes != "Big release" {
		t.Fatalf("unexpected notes: %q", info.ReleaseNotes)
	}
}

func TestCheckFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := Check(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
