// Package context assembles a budget-bounded slice of the workspace into one
// text document for a model call.
//
// Assembly proceeds in priority tiers: the current file, its same-directory
// siblings, a breadth-first walk of its import graph, and root-level
// manifests. Every append is all-or-nothing against the character budget;
// the first rejected append ends the assembly with a truncation marker.
package context

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lmctx/internal/logging"
	"lmctx/internal/world"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Sentinels returned by Assemble instead of a document.
const (
	NoActiveEditor  = "NO_ACTIVE_EDITOR"
	NoWorkspaceOpen = "NO_WORKSPACE_OPEN"
)

var (
	ErrNoActiveEditor  = errors.New("no active editor")
	ErrNoWorkspaceOpen = errors.New("no workspace open")
)

// Tier gates, as fractions of capacity. Lower-value tiers are skipped once
// usage passes their gate.
const (
	importGate   = 0.92
	siblingGate  = 0.90
	manifestGate = 0.88
	manifestStop = 0.95

	// Lockfiles larger than this are replaced by a marker.
	lockfileCeiling = 100_000
)

const (
	markerCurrentTooLarge = "\n...[TRUNCATED: current file too large]"
	markerWindowFull      = "\n...[TRUNCATED: context window full]"
	manifestHeader        = "PROJECT CONFIGS & MANIFESTS:\n\n"
)

// Tier names reported in Stats.
const (
	TierCurrent   = "current"
	TierSiblings  = "siblings"
	TierImports   = "imports"
	TierManifests = "manifests"
)

// BudgetSource supplies the character capacity for one assembly.
type BudgetSource interface {
	Budget(ctx context.Context) int
}

// Options tunes an Assembler.
type Options struct {
	MaxFileChars int
	ExcludedDirs []string
	ReadWorkers  int
}

// Stats describes one assembly.
type Stats struct {
	ID        string
	Capacity  int
	Used      int
	Files     int
	Tiers     []string
	Truncated bool
	Elapsed   time.Duration
}

// Assembler builds context documents. It holds no per-assembly state and is
// safe for concurrent use.
type Assembler struct {
	budget BudgetSource
	opts   Options
}

// NewAssembler creates an assembler drawing capacity from b.
func NewAssembler(b BudgetSource, opts Options) *Assembler {
	if opts.MaxFileChars <= 0 {
		opts.MaxFileChars = 1200
	}
	if opts.ReadWorkers <= 0 {
		opts.ReadWorkers = 4
	}
	if opts.ExcludedDirs == nil {
		opts.ExcludedDirs = world.DefaultExcludedDirs
	}
	return &Assembler{budget: b, opts: opts}
}

// Assemble returns the context document for currentFile within root. It
// returns NoActiveEditor or NoWorkspaceOpen when either input is missing,
// and "" when ctx is cancelled before completion.
func (a *Assembler) Assemble(ctx context.Context, currentFile, root string) string {
	doc, _, err := a.AssembleDocument(ctx, currentFile, root)
	switch {
	case errors.Is(err, ErrNoActiveEditor):
		return NoActiveEditor
	case errors.Is(err, ErrNoWorkspaceOpen):
		return NoWorkspaceOpen
	case err != nil:
		return ""
	}
	return doc.String()
}

// assembly is the state of one AssembleDocument call.
type assembly struct {
	*Assembler
	ctx     context.Context
	root    string
	current string
	doc     *Document
	visited visitedSet
	stopped bool
}

// AssembleDocument is Assemble with the document and statistics exposed.
// Errors are ErrNoActiveEditor, ErrNoWorkspaceOpen or the context error.
func (a *Assembler) AssembleDocument(ctx context.Context, currentFile, root string) (*Document, Stats, error) {
	stats := Stats{ID: uuid.NewString()}
	if strings.TrimSpace(currentFile) == "" {
		return nil, stats, ErrNoActiveEditor
	}
	if strings.TrimSpace(root) == "" {
		return nil, stats, ErrNoWorkspaceOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	start := time.Now()
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}
	absCurrent, err := filepath.Abs(currentFile)
	if err != nil {
		absCurrent = filepath.Clean(currentFile)
	}

	capacity := a.budget.Budget(ctx)
	stats.Capacity = capacity
	log := logging.Get(logging.CategoryContext).With(map[string]interface{}{"assembly": stats.ID})
	log.Debug("assembling %s (capacity %d chars)", world.RelPath(absRoot, absCurrent), capacity)

	as := &assembly{
		Assembler: a,
		ctx:       ctx,
		root:      absRoot,
		current:   absCurrent,
		doc:       newDocument(capacity),
		visited:   make(visitedSet),
	}

	steps := []struct {
		tier string
		run  func() error
	}{
		{TierCurrent, as.currentTier},
		{TierSiblings, as.siblingTier},
		{TierImports, as.importTier},
		{TierManifests, as.manifestTier},
	}
	for _, step := range steps {
		if as.stopped {
			break
		}
		stats.Tiers = append(stats.Tiers, step.tier)
		if err := step.run(); err != nil {
			log.Debug("assembly cancelled during %s tier: %v", step.tier, err)
			return nil, stats, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	b := as.doc.Budget()
	stats.Used = b.Used
	stats.Files = len(as.doc.files)
	stats.Truncated = as.stopped
	stats.Elapsed = time.Since(start)
	log.Info("assembled %d files, %d/%d chars, tiers=%v truncated=%v in %v",
		stats.Files, stats.Used, stats.Capacity, stats.Tiers, stats.Truncated, stats.Elapsed)
	return as.doc, stats, nil
}

// add appends text or, on rejection, ends the assembly with the
// window-full marker.
func (as *assembly) add(text, path string) bool {
	if as.doc.tryAppend(text, path) {
		return true
	}
	as.stop(markerWindowFull)
	return false
}

func (as *assembly) stop(marker string) {
	as.stopped = true
	as.doc.tryAppend(marker, "")
}

func (as *assembly) rel(path string) string {
	return world.RelPath(as.root, path)
}

func (as *assembly) currentTier() error {
	header := fmt.Sprintf("CURRENT FILE: %s\n\n", as.rel(as.current))
	as.visited.add(as.current)

	sf := world.ReadSource(as.ctx, as.current, as.opts.MaxFileChars)
	if err := as.ctx.Err(); err != nil {
		return err
	}
	if !as.doc.tryAppend(header+formatSection(as.rel(sf.Path), sf), includedPath(sf)) {
		as.stop(markerCurrentTooLarge)
	}
	return nil
}

func (as *assembly) siblingTier() error {
	if !as.doc.Budget().Below(siblingGate) {
		return nil
	}
	entries := world.ListDir(filepath.Dir(as.current), as.opts.ExcludedDirs)

	// Read candidates in parallel; appends happen below in name order.
	files := make([]*world.SourceFile, len(entries))
	g, gctx := errgroup.WithContext(as.ctx)
	g.SetLimit(as.opts.ReadWorkers)
	for i, e := range entries {
		if e.IsDir || as.visited.has(e.Path) || !world.IsSourceOrConfig(e.Name) {
			continue
		}
		i, e := i, e
		g.Go(func() error {
			sf := world.ReadSource(gctx, e.Path, as.opts.MaxFileChars)
			files[i] = &sf
			return nil
		})
	}
	_ = g.Wait()
	if err := as.ctx.Err(); err != nil {
		return err
	}

	for i, e := range entries {
		if !as.doc.Budget().Below(siblingGate) {
			return nil
		}
		if e.IsDir {
			if !as.add(fmt.Sprintf("DIR: %s/\n", as.rel(e.Path)), "") {
				return nil
			}
			continue
		}
		sf := files[i]
		if sf == nil || as.visited.has(sf.Path) {
			continue
		}
		as.visited.add(sf.Path)
		if !as.add(formatSection(as.rel(sf.Path), *sf), includedPath(*sf)) {
			return nil
		}
	}
	return nil
}

func (as *assembly) importTier() error {
	queue := []string{as.current}
	for len(queue) > 0 && as.doc.Budget().Below(importGate) {
		if err := as.ctx.Err(); err != nil {
			return err
		}
		file := queue[0]
		queue = queue[1:]

		src := world.ReadSource(as.ctx, file, as.opts.MaxFileChars)
		if !src.Readable {
			continue
		}
		for _, edge := range world.ResolveEdges(src, as.root) {
			if edge.Resolved == "" || as.visited.has(edge.Resolved) {
				continue
			}
			as.visited.add(edge.Resolved)
			if !world.IsSourceOrConfig(edge.Resolved) {
				continue
			}

			sf := world.ReadSource(as.ctx, edge.Resolved, as.opts.MaxFileChars)
			if err := as.ctx.Err(); err != nil {
				return err
			}
			logging.ContextDebug("import %s -> %s", edge.Specifier, as.rel(edge.Resolved))
			if !as.add(formatSection(as.rel(sf.Path), sf), includedPath(sf)) {
				return nil
			}
			if sf.Readable {
				queue = append(queue, sf.Path)
			}
		}
	}
	return nil
}

func (as *assembly) manifestTier() error {
	if !as.doc.Budget().Below(manifestGate) {
		return nil
	}
	headerPending := true
	for _, path := range world.ManifestCandidates(as.root) {
		if as.doc.Budget().Above(manifestStop) {
			return nil
		}
		if err := as.ctx.Err(); err != nil {
			return err
		}
		if as.visited.has(path) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		as.visited.add(path)

		var text, included string
		if world.IsLockfile(path) && info.Size() > lockfileCeiling {
			text = fmt.Sprintf("File: %s [skipped - large lockfile, %d KB]\n\n", as.rel(path), (info.Size()+512)/1024)
		} else {
			sf := world.ReadSource(as.ctx, path, as.opts.MaxFileChars)
			text = formatSection(as.rel(path), sf)
			included = includedPath(sf)
		}
		if headerPending {
			text = manifestHeader + text
		}
		if !as.add(text, included) {
			return nil
		}
		headerPending = false
	}
	return nil
}

func includedPath(sf world.SourceFile) string {
	if !sf.Readable {
		return ""
	}
	return sf.Path
}

// formatSection renders one file: a header line, the body with its first
// line under a branch glyph and the rest indented, then a blank line.
func formatSection(rel string, sf world.SourceFile) string {
	if !sf.Readable {
		return fmt.Sprintf("File: %s [read error]\n\n", rel)
	}
	var b strings.Builder
	b.WriteString("File: ")
	b.WriteString(rel)
	if sf.Truncated {
		b.WriteString(" [truncated]")
	}
	if sf.ReadOnly {
		b.WriteString(" [read-only]")
	}
	b.WriteString("\n  └─ ")
	b.WriteString(strings.ReplaceAll(sf.Content, "\n", "\n     "))
	b.WriteString("\n\n")
	return b.String()
}
