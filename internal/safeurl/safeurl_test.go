package safeurl

import (
	"strings"
	"testing"
)

func TestIsHTTPOrHTTPS(t *testing.T) {
	tests := []struct {
		url   string
		allow bool
	}{
		{"http://example.com/", true},
		{"https://example.com/path", true},
		{"HTTP://x", true},
		{"HTTPS://x", true},
		{"file:///etc/passwd", false},
		{"ftp://example.com", false},
		{"", false},
		{"not-a-url", false},
		{"javascript:alert(1)", false},
		{"http:///nohost", false},
	}
	for _, tt := range tests {
		got := IsHTTPOrHTTPS(tt.url)
		if got != tt.allow {
			t.Errorf("IsHTTPOrHTTPS(%q) = %v, want %v", tt.url, got, tt.allow)
		}
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			"http://provider:8080/streaming/timeshift.php?username=pu&password=pp&stream=555",
			"http://provider:8080/streaming/timeshift.php?redacted",
		},
		{"http://user:pw@host/x", "http://host/x"},
		{"http://host/live/pu/pp/555.ts", "http://host/live/xxx/xxx/555.ts"},
		{"/timeshift/alice/secret/99/1700000000/555.ts", "/timeshift/xxx/xxx/99/1700000000/555.ts"},
		{"http://host/plain/path", "http://host/plain/path"},
		{"%zz", "<invalid-url>"},
	}
	for _, tt := range tests {
		got := RedactURL(tt.in)
		if got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if strings.Contains(got, "pp") && strings.Contains(tt.in, "pp") {
			t.Errorf("RedactURL(%q) leaked password: %q", tt.in, got)
		}
	}
}
