package auth

import (
	"path/filepath"
	"testing"

	"golang.org/x/oauth2"
)

func TestFixRedirectURL(t *testing.T) {
	tests := map[string]string{
		"urn:ietf:wg:oauth:2.0:oob":            "http://localhost:6789/oauth2callback",
		"http://localhost":                     "http://localhost:6789",
		"http://localhost:8080/oauth2callback": "http://localhost:6789/oauth2callback",
		"http://127.0.0.1:6789/cb":             "http://127.0.0.1:6789/cb",
		"https://crm.example.com/oauth":        "https://crm.example.com/oauth",
	}
	for in, want := range tests {
		if got := fixRedirectURL(in); got != want {
			t.Errorf("fixRedirectURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", TokenFile)
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}

	if err := saveToken(path, tok); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}
	loaded, err := tokenFromFile(path)
	if err != nil {
		t.Fatalf("tokenFromFile failed: %v", err)
	}
	if loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" {
		t.Errorf("Expected access/refresh, got %s/%s", loaded.AccessToken, loaded.RefreshToken)
	}
}

func TestBearerOption(t *testing.T) {
	if BearerOption("abc") == nil {
		t.Fatal("BearerOption returned nil")
	}
}
