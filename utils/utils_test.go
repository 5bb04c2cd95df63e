package utils

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseFileByNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	content := "http://a.example\n\n# comment\n  http://b.example  \n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := ParseFileByNewline(path)
	if err != nil {
		t.Fatalf("ParseFileByNewline() error = %v", err)
	}
	want := []string{"http://a.example", "http://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseFileByNewlineMissing(t *testing.T) {
	if _, err := ParseFileByNewline(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDeduplicateStrings(t *testing.T) {
	got := DeduplicateStrings([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestGeneratePassword(t *testing.T) {
	p, err := GeneratePassword(16)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 16 {
		t.Errorf("len = %d, want 16", len(p))
	}
	if _, err := GeneratePassword(0); err == nil {
		t.Error("expected error for zero length")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"remote addr", "203.0.113.7:5555", "", "203.0.113.7"},
		{"forwarded", "10.0.0.1:5555", "198.51.100.4, 10.0.0.1", "198.51.100.4"},
		{"bad forwarded", "10.0.0.1:5555", "garbage", "10.0.0.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := ClientIP(r); got != tc.want {
				t.Errorf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsIPv6(t *testing.T) {
	cases := map[string]bool{
		"2001:db8::1":      true,
		"::1":              true,
		"203.0.113.9":      false,
		"::ffff:192.0.2.1": false,
		"not-an-ip":        false,
	}
	for in, want := range cases {
		if got := IsIPv6(in); got != want {
			t.Errorf("IsIPv6(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsPublicIP(t *testing.T) {
	cases := map[string]bool{
		"8.8.8.8":     true,
		"127.0.0.1":   false,
		"192.168.1.1": false,
		"::1":         false,
		"not-an-ip":   false,
	}
	for in, want := range cases {
		if got := IsPublicIP(in); got != want {
			t.Errorf("IsPublicIP(%q) = %v, want %v", in, got, want)
		}
	}
}
