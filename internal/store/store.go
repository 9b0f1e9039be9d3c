package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"focusflow-go/internal/logger"
	"focusflow-go/internal/types"
)

// Store owns the job collection and its on-disk representations: the JSON
// snapshot rewritten wholesale on every mutation, and the downloaded audio
// artifacts under dataDir. All mutation happens under one lock; reads hand
// out copies.
type Store struct {
	mu      sync.Mutex
	jobs    []*types.Job // most-recent-first
	path    string
	dataDir string
	log     *logger.Logger
}

func New(path, dataDir string) *Store {
	return &Store{
		path:    path,
		dataDir: dataDir,
		log:     logger.New(),
	}
}

// Load reads the snapshot from disk, backfilling derived display fields
// missing from older records. A missing snapshot is a fresh start.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var jobs []*types.Job
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return fmt.Errorf("decode jobs snapshot: %w", err)
	}

	changed := false
	for _, j := range jobs {
		if j.CreatedLabel == "" {
			j.CreatedLabel = time.Unix(j.CreatedAt, 0).Format("2006-01-02 15:04:05")
			changed = true
		}
		if j.ID != "" && j.Path == "" {
			j.Path = "/job/" + j.ID
			changed = true
		}
		if j.Logs == nil {
			j.Logs = []string{}
		}
	}
	s.jobs = jobs
	if changed {
		s.persistLocked()
	}
	return nil
}

// Create prepends a queued job for the given URL.
func (s *Store) Create(url, meetingDate string) *types.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	now := time.Now()
	job := &types.Job{
		ID:           id,
		URL:          url,
		MeetingDate:  meetingDate,
		Status:       types.StatusQueued,
		Logs:         []string{},
		CreatedAt:    now.Unix(),
		CreatedLabel: now.Format("2006-01-02 15:04:05"),
		Path:         "/job/" + id,
	}
	s.jobs = append([]*types.Job{job}, s.jobs...)
	s.persistLocked()
	return job.Clone()
}

// Get returns a copy of the job, if present.
func (s *Store) Get(id string) (*types.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.findLocked(id); j != nil {
		return j.Clone(), true
	}
	return nil, false
}

// List returns copies of all jobs, most-recent-first.
func (s *Store) List() []*types.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	return out
}

// Update applies fn to the job under the store lock and persists.
func (s *Store) Update(id string, fn func(*types.Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findLocked(id)
	if j == nil {
		return false
	}
	fn(j)
	s.persistLocked()
	return true
}

// TryStart flips a startable job to running. It is the state-machine
// guard: a job already mid-pipeline is left untouched and false is
// returned, making duplicate run requests silent no-ops.
func (s *Store) TryStart(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findLocked(id)
	if j == nil || j.Status.Active() {
		return false
	}
	j.Status = types.StatusRunning
	s.persistLocked()
	return true
}

// AppendLog appends one line to the job's log, persists, and mirrors the
// line to the process log.
func (s *Store) AppendLog(id, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findLocked(id)
	if j == nil {
		return
	}
	j.Logs = append(j.Logs, line)
	s.persistLocked()
	s.log.WithJob(id).Info(line)
}

// LogsAfter returns log lines past index after, the total line count and
// the current status. Serves the live log subscription.
func (s *Store) LogsAfter(id string, after int) ([]string, int, types.JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findLocked(id)
	if j == nil {
		return nil, 0, "", false
	}
	if after < 0 {
		after = 0
	}
	if after > len(j.Logs) {
		after = len(j.Logs)
	}
	tail := append([]string(nil), j.Logs[after:]...)
	return tail, len(j.Logs), j.Status, true
}

// Retry resets a job back to queued, clearing error and logs. A full
// retry also clears the transcript and summary; the narrow variant keeps
// both so a rerun can reuse them.
func (s *Store) Retry(id string, full bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findLocked(id)
	if j == nil || j.Status.Active() {
		return false
	}
	j.Status = types.StatusQueued
	j.Error = ""
	j.Logs = []string{}
	if full {
		j.Transcript = ""
		j.Summary = ""
	}
	s.persistLocked()
	return true
}

// Delete removes the job's on-disk artifacts, then the record. Artifact
// removal failures are logged and never block record removal.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.findLocked(id)
	if j == nil {
		return false
	}

	if j.FilePath != "" {
		if err := os.Remove(j.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.WithJob(id).WithError(err).Warn("failed to remove file_path")
		}
	}
	if matches, err := filepath.Glob(filepath.Join(s.dataDir, id+"*")); err == nil {
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
				s.log.WithJob(id).WithError(err).Warn("failed to remove artifact " + filepath.Base(m))
			}
		}
	}

	kept := s.jobs[:0]
	for _, job := range s.jobs {
		if job.ID != id {
			kept = append(kept, job)
		}
	}
	s.jobs = kept
	s.persistLocked()
	return true
}

func (s *Store) findLocked(id string) *types.Job {
	for _, j := range s.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// persistLocked rewrites the whole snapshot. Write errors are logged, not
// returned: in-memory state stays authoritative until the next write.
func (s *Store) persistLocked() {
	raw, err := json.MarshalIndent(s.jobs, "", "  ")
	if err != nil {
		s.log.WithError(err).Error("failed to encode jobs snapshot")
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.WithError(err).Error("failed to create snapshot dir")
			return
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		s.log.WithError(err).Error("failed to save jobs")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.WithError(err).Error("failed to save jobs")
	}
}
