// Package logging provides categorized, level-filtered logging for lmctx.
// Every subsystem logs through a Category so output can be filtered per area.
// Until Initialize or SetBase is called every logger is a no-op, which keeps
// library use (and tests) silent by default.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and command wiring
	CategoryConfig   Category = "config"   // Settings load and hot reload
	CategoryWorld    Category = "world"    // File reads, import extraction, resolution
	CategoryContext  Category = "context"  // Context assembly
	CategoryBudget   Category = "budget"   // Model budget probe and fallback
	CategoryAPI      Category = "api"      // Model server calls
	CategorySanitize Category = "sanitize" // Output cleanup
)

// Options controls how the zap backend is built.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // text, json
	File       string          // empty = stderr
	Categories map[string]bool // nil = all enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Build constructs a zap logger from Options without installing it.
func Build(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(opts.Format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.DisableStacktrace = true

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.Set(strings.ToLower(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	} else {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Initialize builds a zap logger from opts and installs it as the base for
// every category. The returned logger is the one installed.
func Initialize(opts Options) (*zap.Logger, error) {
	logger, err := Build(opts)
	if err != nil {
		return nil, err
	}
	SetBase(logger, opts.Categories)
	return logger, nil
}

// SetBase installs an existing zap logger. Passing nil resets to no-op.
func SetBase(logger *zap.Logger, enabled map[string]bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = logger
	categories = enabled
	loggers = make(map[Category]*Logger)
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.With(zap.String("cat", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

// Sync flushes the base logger.
func Sync() {
	mu.RLock()
	b := base
	mu.RUnlock()
	if err := b.Sync(); err != nil && !isIgnorableSyncError(err) {
		fmt.Fprintf(os.Stderr, "[logging] sync failed: %v\n", err)
	}
}

// stderr/stdout report EINVAL or ENOTTY on Sync on most platforms.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying additional structured fields.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &Logger{category: l.category, sugar: l.sugar.With(kv...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Config(format string, args ...interface{})      { Get(CategoryConfig).Info(format, args...) }
func ConfigDebug(format string, args ...interface{}) { Get(CategoryConfig).Debug(format, args...) }

func World(format string, args ...interface{})      { Get(CategoryWorld).Info(format, args...) }
func WorldDebug(format string, args ...interface{}) { Get(CategoryWorld).Debug(format, args...) }

func Context(format string, args ...interface{})      { Get(CategoryContext).Info(format, args...) }
func ContextDebug(format string, args ...interface{}) { Get(CategoryContext).Debug(format, args...) }

func Budget(format string, args ...interface{})      { Get(CategoryBudget).Info(format, args...) }
func BudgetDebug(format string, args ...interface{}) { Get(CategoryBudget).Debug(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func SanitizeDebug(format string, args ...interface{}) { Get(CategorySanitize).Debug(format, args...) }
