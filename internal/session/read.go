package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// File describes a session log on disk.
type File struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Events  int
}

// List returns the session logs in dir, newest first. A missing dir has no
// logs.
func List(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		files = append(files, File{
			Path:    path,
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Events:  bytes.Count(data, []byte{'\n'}),
		})
	}

	slices.SortFunc(files, func(a, b File) int {
		return b.ModTime.Compare(a.ModTime)
	})
	return files, nil
}

// Read decodes every event in the log at path.
func Read(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	dec := json.NewDecoder(f)
	for {
		var e Event
		err := dec.Decode(&e)
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("decoding event %d: %w", len(events)+1, err)
		}
		events = append(events, e)
	}
}

// Render writes events as a timeline, with times relative to the first.
//
//nolint:errcheck
func Render(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}

	start := events[0].At
	fmt.Fprintf(w, "Session started %s, %d event(s)\n\n", start.Local().Format(time.DateTime), len(events))
	for _, e := range events {
		fmt.Fprintf(w, "%9s  %-16s %s\n", elapsed(e.At.Sub(start)), e.Kind, describe(e))
	}
}

func describe(e Event) string {
	switch e.Kind {
	case KindRunStarted:
		var p RunStarted
		if e.Decode(&p) == nil {
			return fmt.Sprintf("%s (%s): %d prompt(s) x %d model(s) x %d input(s)", p.TestName, p.Mode, p.Prompts, p.Models, p.Inputs)
		}
	case KindPromptStarted:
		var p PromptStarted
		if e.Decode(&p) == nil {
			return fmt.Sprintf("[%d/%d] %s", p.Num, p.Total, p.Prompt)
		}
	case KindPromptFinished:
		var p PromptFinished
		if e.Decode(&p) == nil {
			return fmt.Sprintf("%s: %d cell(s), %d failed, %dms", p.Prompt, p.Cells, p.Errors, p.DurationMs)
		}
	case KindPromptFailed:
		var p PromptFailed
		if e.Decode(&p) == nil {
			return fmt.Sprintf("%s: %s", p.Prompt, p.Message)
		}
	case KindRunFinished:
		var p RunFinished
		if e.Decode(&p) == nil {
			return fmt.Sprintf("%s: %d cell(s), %d failed, %dms", p.Status, p.Cells, p.Errors, p.DurationMs)
		}
	}
	return fmt.Sprint(e.Data)
}

func elapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("+%dms", d.Milliseconds())
	}
	return fmt.Sprintf("+%.1fs", d.Seconds())
}
