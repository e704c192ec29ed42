package entity

import (
	"sync"
	"time"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Counts are the per-candidate outcomes of a download batch.
type Counts struct {
	Downloaded       int `json:"downloaded"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	Failed           int `json:"failed"`
}

func (c *Counts) Add(o Counts) {
	c.Downloaded += o.Downloaded
	c.SkippedDuplicate += o.SkippedDuplicate
	c.Failed += o.Failed
}

// RunState is owned by one pipeline run.
type RunState struct {
	SessionID string

	mu            sync.Mutex
	perFolderKept map[string]map[string]struct{}
}

func NewRunState(sessionID string) *RunState {
	return &RunState{
		SessionID:     sessionID,
		perFolderKept: make(map[string]map[string]struct{}),
	}
}

func (s *RunState) Keep(folder, fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept, exists := s.perFolderKept[folder]
	if !exists {
		kept = make(map[string]struct{})
		s.perFolderKept[folder] = kept
	}
	kept[fileName] = struct{}{}
}

// Kept returns a copy of the kept file names of a folder.
func (s *RunState) Kept(folder string) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(map[string]struct{}, len(s.perFolderKept[folder]))
	for name := range s.perFolderKept[folder] {
		kept[name] = struct{}{}
	}

	return kept
}

// FolderSummary reports one feed folder of a run.
type FolderSummary struct {
	Counts
	CleanedUp   int    `json:"cleaned_up"`
	LinksFound  int    `json:"links_found"`
	Selected    int    `json:"selected"`
	LinksReport string `json:"links_report,omitempty"`
	Description string `json:"description,omitempty"` // HTML rendered from the feed description file
	Error       string `json:"error,omitempty"`
}

// RunSummary is produced by every run, whatever failed on the way.
type RunSummary struct {
	Counts
	CleanedUp int                      `json:"cleaned_up"`
	PerFolder map[string]FolderSummary `json:"per_folder"`
}

// RunSession is the status record of a run as seen by the front-ends.
type RunSession struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	Progress       int         `json:"progress"`
	TotalFeeds     int         `json:"total_feeds"`
	CompletedFeeds int         `json:"completed_feeds"`
	CurrentFeed    string      `json:"current_feed,omitempty"`
	Summary        *RunSummary `json:"summary,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}
