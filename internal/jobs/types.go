package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/Harvey-AU/knowledge-crawler/internal/db"
)

// Status is the lifecycle state of a knowledge base
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrKnowledgeBaseExists   = errors.New("knowledge base already exists")
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
	ErrRunInProgress         = errors.New("a crawl is already running for this knowledge base")
	ErrInvalidSchedule       = errors.New("schedule must be HH:MM in 24-hour time")
	ErrInvalidRequest        = errors.New("invalid request")
)

// runLockTTL bounds how long a crashed process can hold a run lock
const runLockTTL = time.Hour

// KnowledgeBase is a named crawl job
type KnowledgeBase struct {
	Name           string             `json:"name"`
	URLs           []string           `json:"urls"`
	Depth          int                `json:"depth"`
	Schedule       string             `json:"schedule,omitempty"`
	Settings       *crawler.Overrides `json:"settings,omitempty"`
	Status         Status             `json:"status"`
	PagesExtracted int                `json:"pages_extracted"`
	LastError      string             `json:"last_error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// CreateRequest describes a new knowledge base
type CreateRequest struct {
	Name     string             `json:"name"`
	URLs     []string           `json:"urls"`
	Depth    int                `json:"depth"`
	Schedule string             `json:"schedule,omitempty"`
	Settings *crawler.Overrides `json:"settings,omitempty"`
}

// RunSummary reports the outcome of one run over a list of seeds
type RunSummary struct {
	Name           string            `json:"name"`
	RunID          string            `json:"run_id"`
	Seeds          []string          `json:"seeds"`
	PagesExtracted int               `json:"pages_extracted"`
	Results        []*crawler.Result `json:"results"`
	Errors         []string          `json:"errors,omitempty"`
	Duration       time.Duration     `json:"duration"`
}

// StatusReport is the liveness view of the active or most recent crawl
type StatusReport struct {
	KnowledgeBase string `json:"knowledge_base,omitempty"`
	crawler.Progress
}

func fromRecord(rec *db.KnowledgeBase) (*KnowledgeBase, error) {
	kb := &KnowledgeBase{
		Name:           rec.Name,
		URLs:           rec.URLs,
		Depth:          rec.Depth,
		Schedule:       rec.Schedule,
		Status:         Status(rec.Status),
		PagesExtracted: rec.PagesExtracted,
		LastError:      rec.LastError,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if kb.URLs == nil {
		kb.URLs = []string{}
	}

	overrides, err := decodeSettings(rec.Settings)
	if err != nil {
		return nil, err
	}
	kb.Settings = overrides
	return kb, nil
}

func decodeSettings(raw json.RawMessage) (*crawler.Overrides, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var overrides crawler.Overrides
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, err
	}
	return &overrides, nil
}

func encodeSettings(overrides *crawler.Overrides) (json.RawMessage, error) {
	if overrides == nil {
		return nil, nil
	}
	return json.Marshal(overrides)
}
