package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// KnowledgeBase is a named crawl job and its latest run state.
type KnowledgeBase struct {
	Name           string
	URLs           []string
	Depth          int
	Schedule       string
	Settings       json.RawMessage
	Status         string
	PagesExtracted int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const knowledgeBaseColumns = `name, urls, depth, schedule, settings, status, pages_extracted, last_error, created_at, updated_at`

// CreateKnowledgeBase inserts kb, returning ErrAlreadyExists for a taken name.
func (d *DB) CreateKnowledgeBase(ctx context.Context, kb *KnowledgeBase) error {
	urls, err := json.Marshal(kb.URLs)
	if err != nil {
		return fmt.Errorf("failed to encode urls: %w", err)
	}

	now := time.Now().UTC()
	if kb.CreatedAt.IsZero() {
		kb.CreatedAt = now
	}
	kb.UpdatedAt = now

	result, err := d.client.ExecContext(ctx, d.rebind(`
		INSERT INTO knowledge_bases (`+knowledgeBaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`),
		kb.Name, string(urls), kb.Depth, kb.Schedule, string(kb.Settings), kb.Status,
		kb.PagesExtracted, kb.LastError, kb.CreatedAt, kb.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge base: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetKnowledgeBase returns the knowledge base called name or ErrNotFound.
func (d *DB) GetKnowledgeBase(ctx context.Context, name string) (*KnowledgeBase, error) {
	row := d.client.QueryRowContext(ctx,
		d.rebind(`SELECT `+knowledgeBaseColumns+` FROM knowledge_bases WHERE name = ?`), name)

	kb, err := scanKnowledgeBase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge base: %w", err)
	}
	return kb, nil
}

// ListKnowledgeBases returns every knowledge base, oldest first.
func (d *DB) ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error) {
	rows, err := d.client.QueryContext(ctx,
		`SELECT `+knowledgeBaseColumns+` FROM knowledge_bases ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}
	defer rows.Close()

	var bases []KnowledgeBase
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge base: %w", err)
		}
		bases = append(bases, *kb)
	}
	return bases, rows.Err()
}

// UpdateKnowledgeBase overwrites the mutable fields of kb.
func (d *DB) UpdateKnowledgeBase(ctx context.Context, kb *KnowledgeBase) error {
	urls, err := json.Marshal(kb.URLs)
	if err != nil {
		return fmt.Errorf("failed to encode urls: %w", err)
	}
	kb.UpdatedAt = time.Now().UTC()

	result, err := d.client.ExecContext(ctx, d.rebind(`
		UPDATE knowledge_bases
		SET urls = ?, depth = ?, schedule = ?, settings = ?, status = ?,
			pages_extracted = ?, last_error = ?, updated_at = ?
		WHERE name = ?`),
		string(urls), kb.Depth, kb.Schedule, string(kb.Settings), kb.Status,
		kb.PagesExtracted, kb.LastError, kb.UpdatedAt, kb.Name)
	if err != nil {
		return fmt.Errorf("failed to update knowledge base: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKnowledgeBase(row rowScanner) (*KnowledgeBase, error) {
	var (
		kb       KnowledgeBase
		urls     string
		settings string
	)
	err := row.Scan(&kb.Name, &urls, &kb.Depth, &kb.Schedule, &settings, &kb.Status,
		&kb.PagesExtracted, &kb.LastError, &kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(urls), &kb.URLs); err != nil {
		return nil, fmt.Errorf("failed to decode urls: %w", err)
	}
	if settings != "" {
		kb.Settings = json.RawMessage(settings)
	}
	return &kb, nil
}
