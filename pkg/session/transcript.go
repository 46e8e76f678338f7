package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is one persisted conversation turn.
type Entry struct {
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptStore persists conversation turns as one JSONL file per session,
// append-only, for audit. Writes to the same session are serialized by a
// per-key lock.
type TranscriptStore struct {
	dir     string
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewTranscriptStore creates the store, defaulting to
// ~/.deskpilot/transcripts when dir is empty.
func NewTranscriptStore(dir string) (*TranscriptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".deskpilot", "transcripts")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Transcript store initialized")
	return &TranscriptStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// validateSessionID rejects keys that could escape the transcript directory.
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(sessionID, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(sessionID, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(sessionID, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

func (s *TranscriptStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

func (s *TranscriptStore) lock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// Append writes one turn to the session's transcript.
func (s *TranscriptStore) Append(sessionID, role, content string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if role == "" {
		return fmt.Errorf("role cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	file, err := os.OpenFile(s.path(sessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(Entry{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return file.Sync()
}

// Load reads every entry of a session's transcript. Corrupt lines are
// skipped with a warning, not fatal.
func (s *TranscriptStore) Load(sessionID string) ([]Entry, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			log.Warn().
				Str("session_id", sessionID).
				Int("line", lineNum).
				Err(err).
				Msg("Skipping corrupt transcript line")
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return entries, nil
}

// Delete removes a session's transcript file.
func (s *TranscriptStore) Delete(sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	s.locksMu.Lock()
	delete(s.locks, sessionID)
	s.locksMu.Unlock()
	return nil
}

// List returns the session ids with a transcript on disk.
func (s *TranscriptStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	return ids, nil
}

// PruneOlderThan deletes transcripts not written to within the retention
// window. Returns the number removed.
func (s *TranscriptStore) PruneOlderThan(age time.Duration) (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-age)
	pruned := 0
	for _, id := range ids {
		info, err := os.Stat(s.path(id))
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := s.Delete(id); err != nil {
				log.Warn().Str("session_id", id).Err(err).Msg("Failed to prune transcript")
				continue
			}
			pruned++
		}
	}
	return pruned, nil
}
