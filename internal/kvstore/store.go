// Package kvstore is the journaled key-value state machine applied by
// committed log entries. A single apply call serializes every mutation so
// the on-disk journal order always equals the apply order.
package kvstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/krantius/raftkv/internal/logging"
)

// Store is the append-only-journaled key-value state machine. It satisfies
// the KVSM contract from the spec: open a journal, replay it, and serve
// SET/GET/DEL/KEYS through a single Apply entry point.
type Store struct {
	mu          sync.Mutex
	data        map[string]string
	journalPath string
	journal     *os.File
}

// Open loads the journal at path if present, replaying each line into the
// in-memory map, and leaves the journal open for appends. A missing
// journal is not an error: the store starts empty and Open creates the
// file (and its directory) before returning.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir %s: %w", dir, err)
		}
	}

	s := &Store{
		data:        make(map[string]string),
		journalPath: path,
	}

	if err := s.replay(path); err != nil {
		logging.WithField("path", path).Warnf("journal open failed, starting empty: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal for append %s: %w", path, err)
	}
	s.journal = f

	return s, nil
}

func (s *Store) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.WithField("path", path).Warn("journal not found, starting with empty state")
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	replayed := 0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.replayLine(line)
		replayed++
	}

	logging.WithField("path", path).Infof("replayed %d journal entries", replayed)
	return scanner.Err()
}

// replayLine applies a journaled command to the in-memory map only; it
// never re-writes the journal.
func (s *Store) replayLine(line string) {
	word, rest := splitField(line)
	switch word {
	case "SET":
		key, rest2 := splitField(rest)
		value := readValueField(rest2)
		s.data[key] = value
	case "DEL":
		key, _ := splitField(rest)
		delete(s.data, key)
	}
}

// Close flushes and closes the journal file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

// Apply parses and executes one command line, returning the textual
// response. It is the single entry point for both reads and mutations;
// callers (the consensus node's apply loop) must call it once per
// committed entry, in order.
func (s *Store) Apply(command string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	word, rest := splitField(command)
	switch strings.ToUpper(word) {
	case "SET":
		return s.applySet(rest)
	case "GET":
		return s.applyGet(rest)
	case "DEL":
		return s.applyDel(rest)
	case "KEYS":
		return s.applyKeys()
	case "":
		return "ERR empty command\n"
	default:
		return fmt.Sprintf("ERR unknown command '%s'\n", word)
	}
}

func (s *Store) applySet(rest string) string {
	key, rest2 := splitField(rest)
	if key == "" {
		return "ERR wrong number of arguments for 'SET'\n"
	}
	if strings.TrimLeft(rest2, " \t") == "" {
		return "ERR wrong number of arguments for 'SET'\n"
	}
	value := readValueField(rest2)

	if err := s.appendJournal(fmt.Sprintf(`SET %s %s`, quote(key), quote(value))); err != nil {
		logging.Errorf("journal append failed: %v", err)
		return "ERR journal write failed\n"
	}

	s.data[key] = value
	return "OK\n"
}

func (s *Store) applyGet(rest string) string {
	key, _ := splitField(rest)
	if v, ok := s.data[key]; ok {
		return fmt.Sprintf("%s\n", quote(v))
	}
	return "(nil)\n"
}

func (s *Store) applyDel(rest string) string {
	key, _ := splitField(rest)
	if key == "" {
		return "ERR wrong number of arguments for 'DEL'\n"
	}

	if err := s.appendJournal(fmt.Sprintf(`DEL %s`, quote(key))); err != nil {
		logging.Errorf("journal append failed: %v", err)
		return "ERR journal write failed\n"
	}

	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		return "1\n"
	}
	return "0\n"
}

func (s *Store) applyKeys() string {
	if len(s.data) == 0 {
		return "(empty list or set)\n"
	}

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		fmt.Fprintf(&b, "%d) %s\n", i+1, quote(k))
	}
	return b.String()
}

// appendJournal writes one canonical line and flushes it before returning,
// so a crash between flush and the caller's in-memory mutation is repaired
// by replay on next open.
func (s *Store) appendJournal(line string) error {
	if _, err := s.journal.WriteString(line + "\n"); err != nil {
		return err
	}
	return s.journal.Sync()
}

func quote(s string) string {
	return `"` + s + `"`
}

// splitField reads one field off the front of line: a double-quoted span
// (read to the matching quote, no escapes) or a whitespace-delimited
// token. It returns the field and the unconsumed remainder.
func splitField(line string) (field, rest string) {
	line = strings.TrimLeft(line, " \t")
	if line == "" {
		return "", ""
	}

	if line[0] == '"' {
		if end := strings.IndexByte(line[1:], '"'); end >= 0 {
			end++ // account for the leading quote we sliced off
			return line[1:end], line[end+1:]
		}
		// unterminated quote: treat the rest of the line as the field
		return line[1:], ""
	}

	if idx := strings.IndexAny(line, " \t"); idx >= 0 {
		return line[:idx], line[idx+1:]
	}
	return line, ""
}

// readValueField reads SET's value: the remainder of the line, either up
// to the matching quote if quoted, or verbatim otherwise. A caller that
// has nothing left gets the empty string, which is valid on replay but
// rejected as an error earlier in applySet's direct-client path.
func readValueField(rest string) string {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return ""
	}
	if rest[0] == '"' {
		if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
			return rest[1 : end+1]
		}
		return rest[1:]
	}
	return rest
}
