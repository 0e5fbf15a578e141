package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultRetention = 14 * 24 * time.Hour

// Cleanup prunes run logs past the retention window.
type Cleanup struct {
	manager   *Manager
	retention time.Duration
	interval  time.Duration
	stopCh    chan struct{}
	running   bool
}

// NewCleanup creates a cleanup handler for the manager's run logs.
func NewCleanup(manager *Manager, retention time.Duration) *Cleanup {
	if retention == 0 {
		retention = DefaultRetention
	}
	return &Cleanup{
		manager:   manager,
		retention: retention,
		interval:  time.Hour,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic pruning loop.
func (c *Cleanup) Start() error {
	if c.running {
		return fmt.Errorf("cleanup is already running")
	}
	c.running = true
	go c.run()

	log.Info().Dur("retention", c.retention).Msg("Run log cleanup started")
	return nil
}

// Stop stops the pruning loop.
func (c *Cleanup) Stop() error {
	if !c.running {
		return fmt.Errorf("cleanup is not running")
	}
	close(c.stopCh)
	c.running = false
	return nil
}

func (c *Cleanup) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := c.PruneExpired(); err != nil {
				log.Warn().Err(err).Msg("Run log cleanup failed")
			}
		case <-c.stopCh:
			return
		}
	}
}

// PruneExpired deletes run logs whose last modification is older than the
// retention window. Returns the number of logs removed.
func (c *Cleanup) PruneExpired() (int, error) {
	runs, err := c.manager.ListRuns()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-c.retention)
	removed := 0

	for _, runID := range runs {
		info, err := os.Stat(filepath.Join(c.manager.runsDir, runID+".jsonl"))
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := c.manager.DeleteRun(runID); err != nil {
			log.Warn().Str("runId", runID).Err(err).Msg("Failed to prune run log")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Expired run logs pruned")
	}
	return removed, nil
}
