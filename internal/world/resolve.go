package world

import (
	"os"
	"path/filepath"
	"strings"
)

// ImportEdge links an importing file to a specifier and, when resolution
// succeeded, the file it points at.
type ImportEdge struct {
	From      string
	Specifier string
	Resolved  string // empty when unresolved
}

// IsRelativeSpecifier reports whether spec starts with ./ or ../.
func IsRelativeSpecifier(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// ResolveImport maps spec, imported from fromFile, to an existing file under
// root. Bare package specifiers are never resolved so dependency trees stay
// out of the context. Returns "" when nothing matches.
func ResolveImport(spec, fromFile, root string) string {
	if !IsRelativeSpecifier(spec) {
		return ""
	}
	candidate := filepath.Clean(filepath.Join(filepath.Dir(fromFile), filepath.FromSlash(spec)))

	resolved := ""
	if filepath.Ext(candidate) != "" && isRegularFile(candidate) {
		resolved = candidate
	} else {
		for _, ext := range SourceExtensions {
			if p := candidate + ext; isRegularFile(p) {
				resolved = p
				break
			}
			if p := filepath.Join(candidate, "index"+ext); isRegularFile(p) {
				resolved = p
				break
			}
		}
		if resolved == "" && isRegularFile(candidate) {
			resolved = candidate
		}
	}

	if resolved == "" || !withinRoot(resolved, root) {
		return ""
	}
	return resolved
}

// ResolveEdges extracts and resolves every import of one file.
func ResolveEdges(sf SourceFile, root string) []ImportEdge {
	specs := ExtractImports(sf.Content, sf.Path)
	edges := make([]ImportEdge, 0, len(specs))
	for _, spec := range specs {
		edges = append(edges, ImportEdge{
			From:      sf.Path,
			Specifier: spec,
			Resolved:  ResolveImport(spec, sf.Path, root),
		})
	}
	return edges
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func withinRoot(path, root string) bool {
	if root == "" {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// RelPath returns path relative to root with forward slashes, falling back
// to the cleaned path when it is not under root.
func RelPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || !withinRoot(path, root) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}
