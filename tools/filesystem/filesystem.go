// Copyright 2025 Poiesic Systems
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


// Package filesystem gives agents scoped access to the local file system.
// Include and exclude patterns bound what the tools may touch, and every
// operation reports its outcome as result text, errors included, so the
// model can read what happened and adjust.
package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// FS runs file operations scoped by include/exclude patterns. The zero
// pattern set includes every path.
type FS struct {
	include []string
	exclude []string
	logger  *slog.Logger
}

// Option is a functional option for FS.
type Option func(*FS) error

// WithInclude sets the patterns a path must match to be reachable. Patterns
// are globs or regular expressions, as described on MatchesPatterns.
func WithInclude(patterns ...string) Option {
	return func(f *FS) error {
		f.include = patterns
		return nil
	}
}

// WithExclude sets the patterns that remove paths from scope. Exclusions
// are evaluated after inclusions, so they narrow what the include patterns
// admit.
func WithExclude(patterns ...string) Option {
	return func(f *FS) error {
		f.exclude = patterns
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FS) error {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
		return nil
	}
}

// New builds a scoped file system.
func New(opts ...Option) (*FS, error) {
	f := &FS{
		include: []string{"*"},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	f.logger = f.logger.With("component", "filesystem")
	return f, nil
}

// Allowed reports whether the path is inside the tool's scope.
func (f *FS) Allowed(path string) bool {
	if !MatchesPatterns(path, f.include) {
		return false
	}
	if len(f.exclude) > 0 && MatchesPatterns(path, f.exclude) {
		return false
	}
	return true
}

func outOfScope(path string) string {
	return fmt.Sprintf("Path '%s' is outside the tool's scope.", path)
}

// ListDirectory lists the entries of a directory, one per line, marking each
// as [DIR] or [FILE].
func (f *FS) ListDirectory(path string) string {
	if !f.Allowed(path) {
		return outOfScope(path)
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Sprintf("Error: Path '%s' is not a valid directory.", path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "An error occurred: " + err.Error()
	}
	if len(entries) == 0 {
		return fmt.Sprintf("The directory '%s' is empty.", path)
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			lines = append(lines, "[DIR] "+entry.Name())
		} else {
			lines = append(lines, "[FILE] "+entry.Name())
		}
	}
	return strings.Join(lines, "\n")
}

// ReadFile returns the content of a file.
func (f *FS) ReadFile(path string) string {
	if !f.Allowed(path) {
		return outOfScope(path)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Error: File '%s' not found.", path)
	}
	if err != nil {
		return "An error occurred: " + err.Error()
	}
	return string(data)
}

// WriteFile writes content to a file, creating it when missing.
func (f *FS) WriteFile(path, content string) string {
	if !f.Allowed(path) {
		return outOfScope(path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "An error occurred: " + err.Error()
	}
	f.logger.Debug("wrote file", "path", path, "bytes", len(content))
	return fmt.Sprintf("Successfully wrote to file '%s'.", path)
}

// CreateDirectory creates a directory, parents included. An existing
// directory is not an error.
func (f *FS) CreateDirectory(path string) string {
	if !f.Allowed(path) {
		return outOfScope(path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Sprintf("An error occurred while creating directory '%s': %v", path, err)
	}
	return fmt.Sprintf("Successfully created directory '%s'.", path)
}

// DeleteFile removes a file.
func (f *FS) DeleteFile(path string) string {
	if !f.Allowed(path) {
		return outOfScope(path)
	}
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Error: File '%s' not found.", path)
	}
	if err != nil {
		return fmt.Sprintf("An error occurred while deleting file '%s': %v", path, err)
	}
	f.logger.Debug("deleted file", "path", path)
	return fmt.Sprintf("Successfully deleted file '%s'.", path)
}

// DeleteDirectory removes a directory. Without recursive the directory must
// be empty.
func (f *FS) DeleteDirectory(path string, recursive bool) string {
	if !f.Allowed(path) {
		return outOfScope(path)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Error: Directory '%s' not found.", path)
	}
	var err error
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return fmt.Sprintf("An error occurred while deleting directory '%s': %v", path, err)
	}
	f.logger.Debug("deleted directory", "path", path, "recursive", recursive)
	return fmt.Sprintf("Successfully deleted directory '%s'.", path)
}

// Move renames a file or directory. Both ends must be in scope.
func (f *FS) Move(source, destination string) string {
	if !f.Allowed(source) {
		return outOfScope(source)
	}
	if !f.Allowed(destination) {
		return outOfScope(destination)
	}
	err := os.Rename(source, destination)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Error: Source '%s' not found.", source)
	}
	if err != nil {
		return fmt.Sprintf("An error occurred while moving '%s' to '%s': %v", source, destination, err)
	}
	return fmt.Sprintf("Successfully moved '%s' to '%s'.", source, destination)
}

// CopyFile copies a file, carrying the source's permission bits onto a
// newly created destination.
func (f *FS) CopyFile(source, destination string) string {
	if !f.Allowed(source) {
		return outOfScope(source)
	}
	if !f.Allowed(destination) {
		return outOfScope(destination)
	}
	data, err := os.ReadFile(source)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Error: Source file '%s' not found.", source)
	}
	if err != nil {
		return fmt.Sprintf("An error occurred while copying '%s' to '%s': %v", source, destination, err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(source); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(destination, data, mode); err != nil {
		return fmt.Sprintf("An error occurred while copying '%s' to '%s': %v", source, destination, err)
	}
	return fmt.Sprintf("Successfully copied '%s' to '%s'.", source, destination)
}

// ReplaceInFile swaps one occurrence of oldString for newString. The match
// must be unique, so oldString should carry enough surrounding context to
// pin down the target location.
func (f *FS) ReplaceInFile(path, oldString, newString string) string {
	if !f.Allowed(path) {
		return outOfScope(path)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Error: File '%s' not found.", path)
	}
	if err != nil {
		return "An error occurred: " + err.Error()
	}

	content := string(data)
	switch count := strings.Count(content, oldString); {
	case count == 0:
		return fmt.Sprintf("Error: The specified 'old_string' was not found in the file '%s'. No changes were made.", path)
	case count > 1:
		return fmt.Sprintf("Error: %d occurrences found in '%s'. Replacement requires a unique match.", count, path)
	}

	updated := strings.Replace(content, oldString, newString, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "An error occurred: " + err.Error()
	}
	return fmt.Sprintf("Replacement successful in file '%s'.", path)
}
