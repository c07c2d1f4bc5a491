package builtin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/toolbridge/toolbridge/config"
	"github.com/toolbridge/toolbridge/mcp"
)

func registerResources(sess *mcp.Session, cfg config.Config) error {
	configResource, err := mcp.NewResource("config://server", "Server Configuration", configReader(cfg))
	if err != nil {
		return err
	}
	configResource.Description = "Current server configuration"
	configResource.MimeType = "application/json"

	healthResource, err := mcp.NewResource("status://health", "Health Status", healthReader(sess))
	if err != nil {
		return err
	}
	healthResource.Description = "Server health status"
	healthResource.MimeType = "application/json"

	fileResource, err := mcp.NewResource("file:///{path}", "File", fileReader)
	if err != nil {
		return err
	}
	fileResource.Description = "Read a file from the filesystem"
	fileResource.MimeType = "text/plain"

	for _, r := range []*mcp.Resource{configResource, healthResource, fileResource} {
		if err := sess.RegisterResource(r); err != nil {
			return err
		}
	}
	return nil
}

// configReader exposes the running configuration. Credentials and other
// sensitive values are never included.
func configReader(cfg config.Config) mcp.ResourceReader {
	return func(_ context.Context, uri string, _ map[string]string) ([]mcp.ResourceContents, error) {
		data := map[string]any{
			"server": map[string]any{
				"name":      cfg.Server.Name,
				"version":   cfg.Server.Version,
				"transport": cfg.Server.Transport,
			},
			"mcp": map[string]any{
				"protocolVersion": mcp.ProtocolVersion,
				"enableTools":     cfg.MCP.EnableTools,
				"enableResources": cfg.MCP.EnableResources,
				"enablePrompts":   cfg.MCP.EnablePrompts,
			},
		}
		text, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{{
			URI:      uri,
			MimeType: "application/json",
			Text:     string(text),
		}}, nil
	}
}

func healthReader(sess *mcp.Session) mcp.ResourceReader {
	return func(_ context.Context, uri string, _ map[string]string) ([]mcp.ResourceContents, error) {
		status := "not_ready"
		if sess.State() == mcp.SessionReady {
			status = "healthy"
		}
		data := map[string]any{
			"status": status,
			"session": map[string]any{
				"id":            sess.ID(),
				"state":         sess.State().String(),
				"toolCount":     len(sess.Tools()),
				"resourceCount": len(sess.Resources()),
				"promptCount":   len(sess.Prompts()),
			},
		}
		text, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{{
			URI:      uri,
			MimeType: "application/json",
			Text:     string(text),
		}}, nil
	}
}

// fileReader serves the file:///{path} template. Text files come back
// verbatim with a MIME type guessed from the extension; anything that is
// not valid UTF-8 is returned as a base64 blob.
func fileReader(_ context.Context, uri string, vars map[string]string) ([]mcp.ResourceContents, error) {
	path := strings.TrimPrefix(uri, "file:///")
	if path == "" {
		path = vars["path"]
	}
	if path == "" {
		return nil, fmt.Errorf("no file path specified")
	}

	path, err := resolvePath("/" + path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", mcp.ErrResourceNotFound, path)
		}
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	if !utf8.Valid(content) {
		return []mcp.ResourceContents{{
			URI:      uri,
			MimeType: "application/octet-stream",
			Blob:     base64.StdEncoding.EncodeToString(content),
		}}, nil
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	return []mcp.ResourceContents{{
		URI:      uri,
		MimeType: mimeType,
		Text:     string(content),
	}}, nil
}
