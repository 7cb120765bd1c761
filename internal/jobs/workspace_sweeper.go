package jobs

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lukasbauer/voicetransfer/internal/workspace"
)

// WorkspaceSweeperJob removes request workspaces that outlived their request.
// Every request removes its own workspace, so anything left behind belongs to
// a process that crashed or was killed mid-request.
type WorkspaceSweeperJob struct {
	root     string
	maxAge   time.Duration
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorkspaceSweeperJob creates a new sweeper for workspaces under root.
func NewWorkspaceSweeperJob(root string, maxAge time.Duration, logger *log.Logger, interval time.Duration) *WorkspaceSweeperJob {
	if interval == 0 {
		interval = 15 * time.Minute
	}
	if maxAge == 0 {
		maxAge = 1 * time.Hour
	}
	if root == "" {
		root = os.TempDir()
	}
	return &WorkspaceSweeperJob{
		root:     root,
		maxAge:   maxAge,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background job.
func (j *WorkspaceSweeperJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("WorkspaceSweeperJob: started (root=%s, max_age=%v, interval=%v)", j.root, j.maxAge, j.interval)
}

// Stop gracefully stops the background job.
func (j *WorkspaceSweeperJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("WorkspaceSweeperJob: stopped")
}

func (j *WorkspaceSweeperJob) run() {
	defer j.wg.Done()

	// Run immediately on start
	j.Sweep()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-j.stopCh:
			return
		}
	}
}

// Sweep removes stale workspaces once and returns how many were removed.
func (j *WorkspaceSweeperJob) Sweep() int {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		j.logger.Printf("WorkspaceSweeperJob: failed to read %s: %v", j.root, err)
		return 0
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspace.Prefix) {
			continue
		}
		path := filepath.Join(j.root, e.Name())
		// Writes inside a workspace do not touch its mtime, so a long
		// request can look stale while it is still running.
		if workspace.InUse(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			j.logger.Printf("WorkspaceSweeperJob: failed to remove %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Printf("WorkspaceSweeperJob: removed %d stale workspaces", removed)
	}
	return removed
}
