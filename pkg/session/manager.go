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

// Record kinds written to a run log.
const (
	KindRunStart = "run_start"
	KindRunEnd   = "run_end"
	KindMessage  = "message"
)

// Record is one JSONL line in a run log.
type Record struct {
	RunID     string                 `json:"runId"`
	Kind      string                 `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Manager persists run logs using JSONL format. Writes are append-only;
// the agent loop never reads a log back mid-run.
type Manager struct {
	runsDir    string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
}

// NewManager creates a run log manager rooted at runsDir.
func NewManager(runsDir string) (*Manager, error) {
	if runsDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		runsDir = filepath.Join(homeDir, ".kestrel", "runs")
	}

	if err := os.MkdirAll(runsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	m := &Manager{
		runsDir:    runsDir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", runsDir).Msg("Run log manager initialized")
	return m, nil
}

// validateRunID rejects IDs that could escape the runs directory.
func (m *Manager) validateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}
	if strings.Contains(runID, "..") {
		return fmt.Errorf("run ID cannot contain '..'")
	}
	if strings.ContainsAny(runID, "/\\") {
		return fmt.Errorf("run ID cannot contain path separators")
	}
	if strings.Contains(runID, "\x00") {
		return fmt.Errorf("run ID cannot contain null bytes")
	}
	return nil
}

func (m *Manager) runPath(runID string) string {
	return filepath.Join(m.runsDir, runID+".jsonl")
}

func (m *Manager) writeLock(runID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if lock, exists := m.writeLocks[runID]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	m.writeLocks[runID] = lock
	return lock
}

// RunStarted appends the run-start record. Written once, before the first
// provider call.
func (m *Manager) RunStarted(runID string, payload map[string]interface{}) error {
	return m.Append(runID, KindRunStart, payload)
}

// RunEnded appends the run-end record with the terminal status.
func (m *Manager) RunEnded(runID string, status string, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["status"] = status
	return m.Append(runID, KindRunEnd, payload)
}

// Append writes one record to the run log and syncs it to disk.
func (m *Manager) Append(runID string, kind string, payload map[string]interface{}) error {
	if err := m.validateRunID(runID); err != nil {
		return err
	}
	if kind == "" {
		return fmt.Errorf("record kind cannot be empty")
	}

	lock := m.writeLock(runID)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(m.runPath(runID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer file.Close()

	record := Record{
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync run log: %w", err)
	}

	log.Debug().Str("runId", runID).Str("kind", kind).Msg("Run record appended")
	return nil
}

// LoadRun reads all records of a run log. Malformed lines are skipped.
func (m *Manager) LoadRun(runID string) ([]Record, error) {
	if err := m.validateRunID(runID); err != nil {
		return nil, err
	}

	file, err := os.Open(m.runPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			log.Warn().
				Str("runId", runID).
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse run record, skipping")
			continue
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}
	return records, nil
}

// ListRuns lists the IDs of all persisted runs.
func (m *Manager) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(m.runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var runs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(name, ".jsonl"))
	}
	return runs, nil
}

// DeleteRun removes a run log.
func (m *Manager) DeleteRun(runID string) error {
	if err := m.validateRunID(runID); err != nil {
		return err
	}

	lock := m.writeLock(runID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(m.runPath(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run log: %w", err)
	}

	m.locksMu.Lock()
	delete(m.writeLocks, runID)
	m.locksMu.Unlock()

	log.Info().Str("runId", runID).Msg("Run log deleted")
	return nil
}

// Close releases per-run write locks.
func (m *Manager) Close() error {
	m.locksMu.Lock()
	m.writeLocks = make(map[string]*sync.Mutex)
	m.locksMu.Unlock()
	return nil
}
