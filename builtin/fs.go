package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/toolbridge/toolbridge/mcp"
)

func readFileTool() *mcp.Tool {
	t, _ := mcp.NewTool("read_file", "Read the contents of a file",
		&mcp.InputSchema{
			Type: "object",
			Properties: map[string]*mcp.SchemaProperty{
				"path": {
					Type:        "string",
					Description: "Path to the file to read",
				},
			},
			Required: []string{"path"},
		},
		func(_ context.Context, args map[string]any) ([]mcp.Content, error) {
			var p struct {
				Path string `json:"path"`
			}
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}

			path, err := resolvePath(p.Path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("file not found: %s", p.Path)
				}
				return nil, fmt.Errorf("cannot access %s: %w", p.Path, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("not a file: %s", p.Path)
			}

			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("error reading file: %w", err)
			}
			if !utf8.Valid(content) {
				return nil, fmt.Errorf("file %s is not valid UTF-8 text", p.Path)
			}
			return mcp.TextContent(string(content)), nil
		})
	t.Category = "file"
	t.Tags = []string{"file", "read"}
	return t
}

func writeFileTool() *mcp.Tool {
	t, _ := mcp.NewTool("write_file", "Write content to a file",
		&mcp.InputSchema{
			Type: "object",
			Properties: map[string]*mcp.SchemaProperty{
				"path": {
					Type:        "string",
					Description: "Path to the file to write",
				},
				"content": {
					Type:        "string",
					Description: "Content to write to the file",
				},
				"create_dirs": {
					Type:        "boolean",
					Description: "Create parent directories if they don't exist",
					Default:     false,
				},
			},
			Required: []string{"path", "content"},
		},
		func(_ context.Context, args map[string]any) ([]mcp.Content, error) {
			var p struct {
				Path       string `json:"path"`
				Content    string `json:"content"`
				CreateDirs bool   `json:"create_dirs"`
			}
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}

			path, err := resolvePath(p.Path)
			if err != nil {
				return nil, err
			}
			dir := filepath.Dir(path)
			if p.CreateDirs {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("error creating directories: %w", err)
				}
			} else if _, err := os.Stat(dir); os.IsNotExist(err) {
				return nil, fmt.Errorf("directory does not exist: %s", dir)
			}

			if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
				return nil, fmt.Errorf("error writing file: %w", err)
			}
			return mcp.TextContent(fmt.Sprintf("Successfully wrote %d bytes to %s", len(p.Content), p.Path)), nil
		})
	t.Category = "file"
	t.Tags = []string{"file", "write"}
	return t
}

func listDirectoryTool() *mcp.Tool {
	t, _ := mcp.NewTool("list_directory", "List files and directories in a path",
		&mcp.InputSchema{
			Type: "object",
			Properties: map[string]*mcp.SchemaProperty{
				"path": {
					Type:        "string",
					Description: "Path to the directory to list",
					Default:     ".",
				},
				"recursive": {
					Type:        "boolean",
					Description: "Recursively list subdirectories",
					Default:     false,
				},
			},
			Required: []string{"path"},
		},
		func(_ context.Context, args map[string]any) ([]mcp.Content, error) {
			var p struct {
				Path      string `json:"path"`
				Recursive bool   `json:"recursive"`
			}
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}

			path, err := resolvePath(p.Path)
			if err != nil {
				return nil, err
			}
			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("directory not found: %s", p.Path)
				}
				return nil, fmt.Errorf("cannot access %s: %w", p.Path, err)
			}
			if !info.IsDir() {
				return nil, fmt.Errorf("not a directory: %s", p.Path)
			}

			type entry struct {
				Path string `json:"path,omitempty"`
				Name string `json:"name,omitempty"`
				Type string `json:"type"`
			}
			var entries []entry

			if p.Recursive {
				err = filepath.WalkDir(path, func(walked string, d fs.DirEntry, err error) error {
					if err != nil {
						return err
					}
					if walked == path {
						return nil
					}
					rel, err := filepath.Rel(path, walked)
					if err != nil {
						return err
					}
					entries = append(entries, entry{Path: rel, Type: entryType(d.IsDir())})
					return nil
				})
			} else {
				var dirEntries []fs.DirEntry
				dirEntries, err = os.ReadDir(path)
				for _, d := range dirEntries {
					entries = append(entries, entry{Name: d.Name(), Type: entryType(d.IsDir())})
				}
			}
			if err != nil {
				return nil, fmt.Errorf("error listing directory: %w", err)
			}

			return jsonContent(entries)
		})
	t.Category = "file"
	t.Tags = []string{"file", "directory", "list"}
	return t
}

func searchFilesTool() *mcp.Tool {
	t, _ := mcp.NewTool("search_files", "Search for files matching a pattern",
		&mcp.InputSchema{
			Type: "object",
			Properties: map[string]*mcp.SchemaProperty{
				"path": {
					Type:        "string",
					Description: "Base path to search in",
					Default:     ".",
				},
				"pattern": {
					Type:        "string",
					Description: "Glob pattern to match (e.g., '*.go', '**/*.txt')",
				},
			},
			Required: []string{"path", "pattern"},
		},
		func(_ context.Context, args map[string]any) ([]mcp.Content, error) {
			var p struct {
				Path    string `json:"path"`
				Pattern string `json:"pattern"`
			}
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}

			path, err := resolvePath(p.Path)
			if err != nil {
				return nil, err
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				return nil, fmt.Errorf("directory not found: %s", p.Path)
			}

			matcher, err := glob.Compile(p.Pattern, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p.Pattern, err)
			}
			// A bare name pattern matches at any depth under the base path.
			matchBase := !strings.Contains(p.Pattern, "/")

			var matches []string
			err = filepath.WalkDir(path, func(walked string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if walked == path {
					return nil
				}
				rel, err := filepath.Rel(path, walked)
				if err != nil {
					return err
				}
				rel = filepath.ToSlash(rel)
				if matcher.Match(rel) || (matchBase && matcher.Match(filepath.Base(rel))) {
					matches = append(matches, rel)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("error searching files: %w", err)
			}

			return jsonContent(map[string]any{
				"matches": matches,
				"count":   len(matches),
			})
		})
	t.Category = "file"
	t.Tags = []string{"file", "search", "glob"}
	return t
}

func editFileTool() *mcp.Tool {
	t, _ := mcp.NewTool("edit_file", "Replace text in a file and return a unified diff of the change",
		&mcp.InputSchema{
			Type: "object",
			Properties: map[string]*mcp.SchemaProperty{
				"path": {
					Type:        "string",
					Description: "Path to the file to edit",
				},
				"old_text": {
					Type:        "string",
					Description: "Exact text to replace",
				},
				"new_text": {
					Type:        "string",
					Description: "Replacement text",
				},
				"dry_run": {
					Type:        "boolean",
					Description: "Preview the change without writing it",
					Default:     false,
				},
			},
			Required: []string{"path", "old_text", "new_text"},
		},
		func(_ context.Context, args map[string]any) ([]mcp.Content, error) {
			var p struct {
				Path    string `json:"path"`
				OldText string `json:"old_text"`
				NewText string `json:"new_text"`
				DryRun  bool   `json:"dry_run"`
			}
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}

			path, err := resolvePath(p.Path)
			if err != nil {
				return nil, err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("error reading file: %w", err)
			}

			original := string(content)
			if !strings.Contains(original, p.OldText) {
				return nil, fmt.Errorf("text to replace not found in %s", p.Path)
			}
			modified := strings.Replace(original, p.OldText, p.NewText, 1)

			if !p.DryRun {
				if err := os.WriteFile(path, []byte(modified), 0o644); err != nil {
					return nil, fmt.Errorf("error writing file: %w", err)
				}
			}

			return mcp.TextContent(createUnifiedDiff(original, modified, p.Path)), nil
		})
	t.Category = "file"
	t.Tags = []string{"file", "edit", "diff"}
	return t
}

func entryType(isDir bool) string {
	if isDir {
		return "directory"
	}
	return "file"
}

// resolvePath expands a leading tilde and normalizes the path.
func resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func createUnifiedDiff(originalContent, newContent, path string) string {
	dmp := diffmatchpatch.New()

	normalizedOriginal := normalizeLineEndings(originalContent)
	normalizedNew := normalizeLineEndings(newContent)

	diffs := dmp.DiffMain(normalizedOriginal, normalizedNew, true)
	patches := dmp.PatchMake(normalizedOriginal, diffs)

	var diff strings.Builder
	diff.WriteString(fmt.Sprintf("--- %s (original)\n", path))
	diff.WriteString(fmt.Sprintf("+++ %s (modified)\n", path))
	for _, patch := range patches {
		diff.WriteString(dmp.PatchToText([]diffmatchpatch.Patch{patch}))
	}
	return diff.String()
}
