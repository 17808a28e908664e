package world

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"lmctx/internal/logging"
)

// SourceFile is one file as read for a single assembly.
type SourceFile struct {
	Path      string // absolute, cleaned
	Content   string
	Truncated bool
	Readable  bool
	ReadOnly  bool
}

// ReadSource reads path and caps its content at maxChars runes. A read
// failure is reported through Readable=false rather than an error.
func ReadSource(ctx context.Context, path string, maxChars int) SourceFile {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	sf := SourceFile{Path: abs}

	if ctx.Err() != nil {
		return sf
	}

	f, err := os.Open(abs)
	if err != nil {
		logging.WorldDebug("read %s: %v", abs, err)
		return sf
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		logging.WorldDebug("read %s: not a regular file", abs)
		return sf
	}
	sf.ReadOnly = info.Mode().Perm()&0200 == 0

	// A rune is at most 4 bytes; read one rune past the cap so truncation
	// is detectable without loading huge files.
	var r io.Reader = f
	if maxChars > 0 {
		r = io.LimitReader(f, int64(maxChars+1)*utf8.UTFMax)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		logging.WorldDebug("read %s: %v", abs, err)
		return sf
	}

	sf.Readable = true
	sf.Content, sf.Truncated = capRunes(string(data), maxChars)
	return sf
}

// capRunes cuts s to at most n runes. n <= 0 means no cap.
func capRunes(s string, n int) (string, bool) {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
