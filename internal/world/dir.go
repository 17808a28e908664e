package world

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirEntry is one visible entry of a directory listing.
type DirEntry struct {
	Name  string
	Path  string // absolute
	IsDir bool
}

// ListDir returns the entries of dir sorted by name, skipping hidden names
// and excluded directories. Errors yield an empty listing.
func ListDir(dir string, excluded []string) []DirEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	skip := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		skip[e] = true
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() && skip[name] {
			continue
		}
		out = append(out, DirEntry{
			Name:  name,
			Path:  filepath.Join(dir, name),
			IsDir: e.IsDir(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ManifestCandidates returns the absolute paths of root-level manifests in
// inclusion order. Project files matching *.csproj are listed right after
// Directory.Packages.props. Missing files are not filtered here.
func ManifestCandidates(root string) []string {
	out := make([]string, 0, len(ManifestFiles)+1)
	for _, name := range ManifestFiles {
		out = append(out, filepath.Join(root, name))
		if name == "Directory.Packages.props" {
			matches, _ := filepath.Glob(filepath.Join(root, "*.csproj"))
			sort.Strings(matches)
			out = append(out, matches...)
		}
	}
	return out
}
