// Package editor implements the file viewing and editing operations the
// model invokes through the edit_file tool: view, create, str_replace,
// insert and undo_edit. All writes are atomic; a failed write never leaves
// a partially written file behind.
package editor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// snippetLines of context shown around an edit.
	snippetLines = 4
	// maxResponseChars bounds any editor output headed for the transcript.
	maxResponseChars = 16000

	truncatedNote = "\n<response clipped>"
)

// Editor applies file operations and keeps a per-path undo history for the
// lifetime of one agent run.
type Editor struct {
	history map[string][][]byte
}

// New creates an editor with empty history.
func New() *Editor {
	return &Editor{history: make(map[string][][]byte)}
}

// View returns a file's numbered content, optionally restricted to a
// 1-based inclusive line range ([start, end]; end -1 = to EOF). For a
// directory it lists entries two levels deep.
func (e *Editor) View(path string, viewRange []int) (string, error) {
	if err := checkAbs(path); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("path %s does not exist", path)
	}
	if info.IsDir() {
		if len(viewRange) > 0 {
			return "", fmt.Errorf("view_range is not allowed for directories")
		}
		return e.viewDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)
	startLine := 1

	if len(viewRange) > 0 {
		if len(viewRange) != 2 {
			return "", fmt.Errorf("view_range must be [start, end]")
		}
		lines := strings.Split(content, "\n")
		start, end := viewRange[0], viewRange[1]
		if start < 1 || start > len(lines) {
			return "", fmt.Errorf("view_range start %d out of range [1, %d]", start, len(lines))
		}
		if end == -1 || end > len(lines) {
			end = len(lines)
		}
		if end < start {
			return "", fmt.Errorf("view_range end %d before start %d", end, start)
		}
		content = strings.Join(lines[start-1:end], "\n")
		startLine = start
	}

	return truncate(numbered(content, startLine)), nil
}

func (e *Editor) viewDir(path string) (string, error) {
	var entries []string
	root := filepath.Clean(path)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if p == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if strings.Count(rel, string(filepath.Separator)) >= 2 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			rel += "/"
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("list %s: %w", path, err)
	}
	sort.Strings(entries)
	return truncate(fmt.Sprintf("Entries in %s (two levels deep, hidden files excluded):\n%s",
		path, strings.Join(entries, "\n"))), nil
}

// Create writes a new file. Refuses to overwrite an existing one.
func (e *Editor) Create(path, content string) (string, error) {
	if err := checkAbs(path); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("file %s already exists, use str_replace to modify it", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs: %w", err)
	}
	if err := writeAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	e.history[path] = append(e.history[path], nil) // nil = file did not exist
	return fmt.Sprintf("File created successfully at: %s", path), nil
}

// StrReplace replaces exactly one occurrence of old with new. Zero or
// multiple matches fail without touching the file.
func (e *Editor) StrReplace(path, old, new string) (string, error) {
	content, err := e.readForEdit(path)
	if err != nil {
		return "", err
	}
	if old == "" {
		return "", fmt.Errorf("old_str must not be empty")
	}

	switch n := strings.Count(content, old); {
	case n == 0:
		return "", fmt.Errorf("old_str was not found in %s", path)
	case n > 1:
		lines := matchLines(content, old)
		return "", fmt.Errorf("old_str occurs %d times in %s (lines %s); make it unique", n, path, lines)
	}

	idx := strings.Index(content, old)
	updated := content[:idx] + new + content[idx+len(old):]
	if err := e.writeWithHistory(path, content, updated); err != nil {
		return "", err
	}

	// Show the edited region with context.
	replLine := strings.Count(content[:idx], "\n")
	snippet := snippetAround(updated, replLine, replLine+strings.Count(new, "\n"))
	return truncate(fmt.Sprintf("The file %s has been edited. %s\nReview the changes and make sure they are as expected.", path, snippet)), nil
}

// Insert adds text after the given 1-based line (0 = top of file).
func (e *Editor) Insert(path string, afterLine int, text string) (string, error) {
	content, err := e.readForEdit(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(content, "\n")
	if afterLine < 0 || afterLine > len(lines) {
		return "", fmt.Errorf("insert_line %d out of range [0, %d]", afterLine, len(lines))
	}

	inserted := strings.Split(text, "\n")
	updated := make([]string, 0, len(lines)+len(inserted))
	updated = append(updated, lines[:afterLine]...)
	updated = append(updated, inserted...)
	updated = append(updated, lines[afterLine:]...)

	newContent := strings.Join(updated, "\n")
	if err := e.writeWithHistory(path, content, newContent); err != nil {
		return "", err
	}

	snippet := snippetAround(newContent, afterLine, afterLine+len(inserted)-1)
	return truncate(fmt.Sprintf("The file %s has been edited. %s\nReview the changes and make sure they are as expected.", path, snippet)), nil
}

// UndoEdit reverts the most recent edit to path.
func (e *Editor) UndoEdit(path string) (string, error) {
	if err := checkAbs(path); err != nil {
		return "", err
	}
	hist := e.history[path]
	if len(hist) == 0 {
		return "", fmt.Errorf("no edit history for %s", path)
	}
	prev := hist[len(hist)-1]

	if prev == nil {
		// The file was created by us; undo removes it.
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("undo create: %w", err)
		}
	} else {
		if err := writeAtomic(path, prev); err != nil {
			return "", err
		}
	}
	e.history[path] = hist[:len(hist)-1]
	return fmt.Sprintf("Last edit to %s undone successfully.", path), nil
}

func (e *Editor) readForEdit(path string) (string, error) {
	if err := checkAbs(path); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("path %s does not exist", path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// writeWithHistory snapshots the original content, then writes atomically.
// The snapshot is recorded only after the write succeeds, so a failed
// write changes neither the file nor the undo stack.
func (e *Editor) writeWithHistory(path, original, updated string) error {
	if err := writeAtomic(path, []byte(updated)); err != nil {
		return err
	}
	e.history[path] = append(e.history[path], []byte(original))
	return nil
}

// writeAtomic writes via a temp file in the target directory plus rename,
// preserving the original mode. On any failure the destination keeps its
// previous content.
func writeAtomic(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func checkAbs(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path %s is not absolute", path)
	}
	return nil
}

// numbered renders content cat -n style starting at startLine.
func numbered(content string, startLine int) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%6d\t%s\n", startLine+i, line)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// snippetAround numbers the lines around [fromLine, toLine] (0-based) with
// snippetLines of context on each side.
func snippetAround(content string, fromLine, toLine int) string {
	lines := strings.Split(content, "\n")
	start := fromLine - snippetLines
	if start < 0 {
		start = 0
	}
	end := toLine + snippetLines + 1
	if end > len(lines) {
		end = len(lines)
	}
	return fmt.Sprintf("Snippet of the result:\n%s", numbered(strings.Join(lines[start:end], "\n"), start+1))
}

// matchLines lists the 1-based line numbers where needle occurs.
func matchLines(content, needle string) string {
	var nums []string
	offset := 0
	for {
		idx := strings.Index(content[offset:], needle)
		if idx < 0 {
			break
		}
		line := strings.Count(content[:offset+idx], "\n") + 1
		nums = append(nums, fmt.Sprintf("%d", line))
		offset += idx + len(needle)
	}
	return strings.Join(nums, ", ")
}

func truncate(s string) string {
	if len(s) <= maxResponseChars {
		return s
	}
	return s[:maxResponseChars] + truncatedNote
}
