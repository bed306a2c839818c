// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	entryIndent = 4  // spaces to indent entry lines
	pathWidth   = 40 // base width for the path column
	kindWidth   = 10 // width for the entry kind
)

// 🎯 FetchOperation describes one path read through a session
type FetchOperation struct {
	Path   string // path as requested, relative to the session root
	Kind   string // file / dir / submodule / symlink
	Size   int64  // bytes read, 0 for listings
	Target string // symlink target or submodule repository, if any
	Err    error  // failure, if the read did not succeed
}

// 📦 SourceOperation represents the repository a batch of reads runs against
type SourceOperation struct {
	Source string // rendered source, e.g. github:org/repo@main:/
	Commit string // pinned commit, empty for empty repositories
}

// 🎯 Logger handles structured logging with console output
type Logger struct {
	zlog       zerolog.Logger
	console    io.Writer
	mu         sync.Mutex
	currentOp  *SourceOperation
	operations []FetchOperation
}

// 🏭 New creates a new logger. Console output goes to console, the structured mirror
// goes to stderr at the given level.
func New(console io.Writer, level zerolog.Level) *Logger {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
	return &Logger{
		zlog:    zlog,
		console: console,
		mu:      sync.Mutex{},
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		panic("logger not found in context")
	}
	return logger
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

func kindStyle(op FetchOperation) (rune, color.Attribute) {
	if op.Err != nil {
		return '✗', color.FgRed
	}
	switch op.Kind {
	case "dir":
		return '▸', color.FgBlue
	case "submodule":
		return '⇢', color.FgMagenta
	case "symlink":
		return '↪', color.FgCyan
	default:
		return '✓', color.FgGreen
	}
}

// 📝 formatFetchOperation formats a fetch operation for display
func (l *Logger) formatFetchOperation(op FetchOperation) string {
	symbol, symbolColor := kindStyle(op)

	var detail string
	switch {
	case op.Err != nil:
		detail = color.New(color.FgRed).Sprint(op.Err.Error())
	case op.Target != "":
		detail = "→ " + op.Target
	case op.Kind == "file" || op.Kind == "":
		detail = fmt.Sprintf("%d bytes", op.Size)
	}

	return fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", entryIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", pathWidth, op.Path),
		color.New(color.Faint).Sprint(fmt.Sprintf("%-*s", kindWidth, op.Kind)),
		detail)
}

// 📝 LogFetchOperation logs a fetch operation
func (l *Logger) LogFetchOperation(ctx context.Context, op FetchOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.operations = append(l.operations, op)

	fmt.Fprintln(l.console, l.formatFetchOperation(op))

	ev := l.zlog.Info()
	if op.Err != nil {
		ev = l.zlog.Warn().Err(op.Err)
	}
	ev.Str("path", op.Path).
		Str("kind", op.Kind).
		Int64("size", op.Size).
		Str("target", op.Target).
		Msg("fetch operation")
}

// 📝 StartSourceOperation prints the header for a batch of reads
func (l *Logger) StartSourceOperation(ctx context.Context, op SourceOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentOp = &op
	l.operations = nil

	commit := op.Commit
	if commit == "" {
		commit = "(empty)"
	}

	fmt.Fprintf(l.console, "%s %s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprint(op.Source),
		color.New(color.Faint).Sprint("•"),
		color.New(color.FgYellow).Sprint(commit))

	l.zlog.Info().
		Str("source", op.Source).
		Str("commit", op.Commit).
		Msg("starting source operation")
}

// 📝 EndSourceOperation ends the current source operation
func (l *Logger) EndSourceOperation(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentOp == nil {
		return
	}

	failed := 0
	for _, op := range l.operations {
		if op.Err != nil {
			failed++
		}
	}

	l.zlog.Info().
		Str("source", l.currentOp.Source).
		Int("paths", len(l.operations)).
		Int("failed", failed).
		Msg("source operation complete")

	l.currentOp = nil
	l.operations = nil
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("repofetch")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}
