package mcp_test

import (
	"context"
	"testing"

	"github.com/toolbridge/toolbridge/mcp"
)

func emptyReader(_ context.Context, uri string, _ map[string]string) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{{URI: uri}}, nil
}

func TestNewResourceValidation(t *testing.T) {
	testCases := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{name: "config scheme", uri: "config://server", wantErr: false},
		{name: "status scheme", uri: "status://health", wantErr: false},
		{name: "file template", uri: "file:///{path}", wantErr: false},
		{name: "https", uri: "https://example.com/doc", wantErr: false},
		{name: "no scheme", uri: "just-a-name", wantErr: true},
		{name: "unknown scheme", uri: "ftp://host/file", wantErr: true},
		{name: "empty", uri: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mcp.NewResource(tc.uri, "r", emptyReader)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewResource(%q) error = %v, wantErr %v", tc.uri, err, tc.wantErr)
			}
		})
	}
}

func TestNewResourceRequiresReader(t *testing.T) {
	if _, err := mcp.NewResource("config://server", "r", nil); err == nil {
		t.Error("expected error for nil reader")
	}
}

func TestResourceTemplateMatch(t *testing.T) {
	r, err := mcp.NewResource("file:///{path}", "file", emptyReader)
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}
	if !r.IsTemplate() {
		t.Fatal("expected template")
	}

	vars, ok := r.Match("file:///home/user/notes.txt")
	if !ok {
		t.Fatal("expected match")
	}
	if vars["path"] != "home/user/notes.txt" {
		t.Errorf("path var = %q, want %q", vars["path"], "home/user/notes.txt")
	}

	if _, ok := r.Match("config://server"); ok {
		t.Error("unrelated URI must not match")
	}
	if _, ok := r.Match("file:///"); ok {
		t.Error("empty placeholder segment must not match")
	}
}

func TestResourceMultiVarTemplate(t *testing.T) {
	r, err := mcp.NewResource("https://example.com/{owner}/{repo}", "repo", emptyReader)
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}

	vars, ok := r.Match("https://example.com/acme/widgets")
	if !ok {
		t.Fatal("expected match")
	}
	if vars["owner"] != "acme" || vars["repo"] != "widgets" {
		t.Errorf("vars = %v", vars)
	}
}

func TestNonTemplateResourceDoesNotMatch(t *testing.T) {
	r, err := mcp.NewResource("config://server", "config", emptyReader)
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}
	if r.IsTemplate() {
		t.Fatal("plain URI treated as template")
	}
}
