package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Tail returns at most n lines from the end of the file at path. A missing
// file yields no lines; n <= 0 returns every line.
func Tail(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	var (
		lines []string
		next  int
		full  bool
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if n <= 0 || len(lines) < n {
			lines = append(lines, scanner.Text())
			continue
		}
		// Ring: overwrite the oldest line once n lines are held.
		lines[next] = scanner.Text()
		next = (next + 1) % n
		full = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if full {
		lines = append(lines[next:], lines[:next]...)
	}
	return lines, nil
}

// Options control how Render prints log lines.
type Options struct {
	MinLevel zerolog.Level
	NoColor  bool
}

// Render writes JSON log lines through a zerolog console writer. Entries
// below MinLevel are skipped; lines that are not JSON objects are copied
// through unchanged.
func Render(w io.Writer, lines []string, opts Options) error {
	console := zerolog.ConsoleWriter{Out: w, NoColor: opts.NoColor, TimeFormat: time.DateTime}
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry struct {
			Level string `json:"level"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
			continue
		}
		if lvl, err := zerolog.ParseLevel(entry.Level); err == nil && lvl < opts.MinLevel {
			continue
		}
		if _, err := console.Write([]byte(line)); err != nil {
			return fmt.Errorf("render log line: %w", err)
		}
	}
	return nil
}
