// Package checkpoint implements the Checkpoint Store: one JSON file per
// job under a jobs directory, written atomically (write-then-rename) so
// a crash mid-write can never produce a torn record.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/forayproject/bout/internal/job"
)

// ErrNotFound indicates no job record exists for the given ID.
var ErrNotFound = errors.New("job not found")

// Store persists Job records as one file per job under Dir.
type Store struct {
	Dir string
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// SaveJob stamps UpdatedAt and atomically writes j's record.
func (s *Store) SaveJob(j job.Job) error {
	j.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}

	tmp, err := os.CreateTemp(s.Dir, j.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for job %s: %w", j.ID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write job %s: %w", j.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file for job %s: %w", j.ID, err)
	}

	if err := os.Rename(tmpName, s.path(j.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename job %s into place: %w", j.ID, err)
	}

	return nil
}

// LoadJob reads and parses job id's record. It returns ErrNotFound if
// the file is missing or fails to parse as a complete record.
func (s *Store) LoadJob(id string) (job.Job, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return job.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return job.Job{}, fmt.Errorf("%w: %s: corrupt record: %v", ErrNotFound, id, err)
	}
	return j, nil
}

// GetJob is an alias of LoadJob, matching the checkpoint operation set
// this store is grounded on.
func (s *Store) GetJob(id string) (job.Job, error) { return s.LoadJob(id) }

// GetAllJobs returns every persisted job, newest (by CreatedAt) first.
func (s *Store) GetAllJobs() ([]job.Job, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}

	var jobs []job.Job
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		j, err := s.LoadJob(id)
		if err != nil {
			continue // skip unparsable records rather than fail the whole listing
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, j2 int) bool { return jobs[i].CreatedAt.After(jobs[j2].CreatedAt) })
	return jobs, nil
}

// GetIncompleteJobs returns every job whose status is resumable.
func (s *Store) GetIncompleteJobs() ([]job.Job, error) {
	all, err := s.GetAllJobs()
	if err != nil {
		return nil, err
	}
	var out []job.Job
	for _, j := range all {
		if j.Status.Resumable() {
			out = append(out, j)
		}
	}
	return out, nil
}

// DeleteJob removes job id's record, if present.
func (s *Store) DeleteJob(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// UpdateJobStatus loads, mutates status (and optional error message), and
// saves job id in one step.
func (s *Store) UpdateJobStatus(id string, status job.Status, errMsg string) error {
	j, err := s.LoadJob(id)
	if err != nil {
		return err
	}
	j.Status = status
	j.Error = errMsg
	return s.SaveJob(j)
}

// SaveChunkResult loads job id, replaces the chunk matching c.Index, and
// saves — the hot path invoked after every chunk during transcription.
func (s *Store) SaveChunkResult(id string, c job.Chunk) error {
	j, err := s.LoadJob(id)
	if err != nil {
		return err
	}

	replaced := false
	for i := range j.Chunks {
		if j.Chunks[i].Index == c.Index {
			j.Chunks[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		j.Chunks = append(j.Chunks, c)
	}

	return s.SaveJob(j)
}

// CleanupOldJobs deletes records older than maxAge whose status is
// terminal. With dryRun it only reports what would be deleted.
func (s *Store) CleanupOldJobs(maxAge time.Duration, dryRun bool) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}

	var removed []string
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		id := e.Name()[:len(e.Name())-len(".json")]
		j, err := s.LoadJob(id)
		if err != nil || !j.Status.Terminal() {
			continue
		}

		removed = append(removed, id)
		if !dryRun {
			if err := s.DeleteJob(id); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

// CleanupJobFiles removes a job's temp audio file and chunks directory,
// leaving the checkpoint record itself untouched.
func (s *Store) CleanupJobFiles(j job.Job) error {
	if j.AudioPath != "" {
		if err := os.Remove(j.AudioPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove audio file: %w", err)
		}
	}
	if j.ChunksDir != "" {
		if err := os.RemoveAll(j.ChunksDir); err != nil {
			return fmt.Errorf("remove chunks dir: %w", err)
		}
	}
	return nil
}
