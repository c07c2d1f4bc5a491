package mcp

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ResourceReader produces the contents of a resource. For templated
// resources, vars holds the values extracted from the requested URI.
type ResourceReader func(ctx context.Context, uri string, vars map[string]string) ([]ResourceContents, error)

// Resource is a readable content source registered on a session. A URI
// containing placeholder segments, such as "file:///{path}", acts as a
// template: it is listed under resources/templates/list and matched against
// concrete URIs on read.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Reader      ResourceReader

	pattern *regexp.Regexp
	vars    []string
}

var validResourceSchemes = map[string]struct{}{
	"file":   {},
	"config": {},
	"status": {},
	"http":   {},
	"https":  {},
}

var templateVarPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// NewResource builds a resource, validating the URI scheme and precompiling
// the matcher when the URI is a template.
func NewResource(uri, name string, reader ResourceReader) (*Resource, error) {
	if uri == "" {
		return nil, fmt.Errorf("resource URI must not be empty")
	}
	scheme, _, found := strings.Cut(uri, "://")
	if !found {
		return nil, fmt.Errorf("resource URI %q has no scheme", uri)
	}
	if _, ok := validResourceSchemes[scheme]; !ok {
		return nil, fmt.Errorf("resource URI %q has unsupported scheme %q", uri, scheme)
	}
	if reader == nil {
		return nil, fmt.Errorf("resource %q has no reader", uri)
	}

	r := &Resource{
		URI:    uri,
		Name:   name,
		Reader: reader,
	}
	if r.IsTemplate() {
		if err := r.compileTemplate(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// IsTemplate reports whether the URI contains placeholder segments.
func (r *Resource) IsTemplate() bool {
	return strings.Contains(r.URI, "{")
}

// Info returns the wire representation used by resources/list.
func (r *Resource) Info() ResourceInfo {
	return ResourceInfo{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
	}
}

// TemplateInfo returns the wire representation used by resources/templates/list.
func (r *Resource) TemplateInfo() ResourceTemplateInfo {
	return ResourceTemplateInfo{
		URITemplate: r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
	}
}

func (r *Resource) compileTemplate() error {
	var expr strings.Builder
	expr.WriteString("^")

	var names []string
	rest := r.URI
	for {
		loc := templateVarPattern.FindStringSubmatchIndex(rest)
		if loc == nil {
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		expr.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		names = append(names, rest[loc[2]:loc[3]])
		expr.WriteString("(.+)")
		rest = rest[loc[1]:]
	}
	expr.WriteString("$")

	pattern, err := regexp.Compile(expr.String())
	if err != nil {
		return fmt.Errorf("resource template %q: %w", r.URI, err)
	}
	r.pattern = pattern
	r.vars = names
	return nil
}

// Match checks a concrete URI against the template and extracts the
// placeholder values. Non-template resources match by string equality.
func (r *Resource) Match(uri string) (map[string]string, bool) {
	if !r.IsTemplate() {
		if uri == r.URI {
			return nil, true
		}
		return nil, false
	}
	m := r.pattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, false
	}
	vars := make(map[string]string, len(r.vars))
	for i, name := range r.vars {
		vars[name] = m[i+1]
	}
	return vars, true
}
