package world

import (
	"path/filepath"
	"strings"
)

// SourceExtensions lists recognized source extensions in import resolution
// priority order.
var SourceExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".vue", ".svelte", ".py"}

// jsLikeExtensions use the import/require pattern family.
var jsLikeExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".mjs": true, ".cjs": true, ".vue": true, ".svelte": true,
}

// pythonExtensions use the import/from pattern family.
var pythonExtensions = map[string]bool{
	".py": true,
}

// configExtensions are included as siblings even though they never import.
var configExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".env": true, ".xml": true,
	".gradle": true, ".kts": true, ".props": true, ".csproj": true,
	".go": true, ".rs": true, ".java": true, ".rb": true, ".php": true,
	".css": true, ".scss": true, ".html": true, ".md": true,
}

// ManifestFiles is the fixed root-level candidate list for the manifest tier,
// in inclusion order.
var ManifestFiles = []string{
	"package.json",
	"tsconfig.json",
	"jsconfig.json",
	"vite.config.ts",
	"vite.config.js",
	"next.config.js",
	"next.config.mjs",
	"pyproject.toml",
	"requirements.txt",
	"setup.py",
	"Pipfile",
	"Cargo.toml",
	"go.mod",
	"go.sum",
	"pom.xml",
	"build.gradle",
	"build.gradle.kts",
	"settings.gradle",
	"Gemfile",
	"Rakefile",
	"composer.json",
	"Directory.Packages.props",
	".env.example",
	"Dockerfile",
	"docker-compose.yml",
	"docker-compose.yaml",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"poetry.lock",
	"Cargo.lock",
}

var manifestNames = func() map[string]bool {
	m := make(map[string]bool, len(ManifestFiles))
	for _, n := range ManifestFiles {
		m[n] = true
	}
	return m
}()

var lockfiles = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"poetry.lock":       true,
	"Cargo.lock":        true,
	"go.sum":            true,
}

// DefaultExcludedDirs are never listed or descended into.
var DefaultExcludedDirs = []string{
	"node_modules", ".git", "dist", "build", "__pycache__",
	"vendor", "target", ".next", ".venv",
}

// IsSourceOrConfig reports whether a file name has a recognized source or
// config extension, or is a known manifest.
func IsSourceOrConfig(name string) bool {
	base := filepath.Base(name)
	if manifestNames[base] {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	return jsLikeExtensions[ext] || pythonExtensions[ext] || configExtensions[ext]
}

// IsLockfile reports whether a base name is a known lock-style file.
func IsLockfile(name string) bool {
	return lockfiles[filepath.Base(name)]
}

// IsJSLike reports whether path uses the JS/TS import pattern family.
func IsJSLike(path string) bool {
	return jsLikeExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsPython reports whether path uses the Python import pattern family.
func IsPython(path string) bool {
	return pythonExtensions[strings.ToLower(filepath.Ext(path))]
}
