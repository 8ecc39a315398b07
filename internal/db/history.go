package db

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// HistoryEntry records the outcome of one crawl for page-count modelling.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id"`
	URL            string    `json:"url"`
	Depth          int       `json:"depth"`
	PagesExtracted int       `json:"pages_extracted"`
	AreaLabel      string    `json:"area_label"`
	CreatedAt      time.Time `json:"created_at"`
}

// SaveHistory appends a history entry.
func (d *DB) SaveHistory(ctx context.Context, entry HistoryEntry) error {
	return d.insertHistory(ctx, d.client, entry)
}

func (d *DB) insertHistory(ctx context.Context, q queryer, entry HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, d.rebind(`
		INSERT INTO history (run_id, url, depth, pages_extracted, area_label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		entry.RunID, entry.URL, entry.Depth, entry.PagesExtracted, entry.AreaLabel, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// ListHistory returns every history entry, oldest first.
func (d *DB) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := d.client.QueryContext(ctx, `
		SELECT id, run_id, url, depth, pages_extracted, area_label, created_at
		FROM history
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.URL, &e.Depth, &e.PagesExtracted, &e.AreaLabel, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ImportHistoryCSV loads rows with the header url,depth,pages_extracted,area_label
// in a single transaction and returns how many were imported.
func (d *DB) ImportHistoryCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read csv header: %w", err)
	}
	index, err := historyColumns(header)
	if err != nil {
		return 0, err
	}

	var entries []HistoryEntry
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		depth, err := strconv.Atoi(record[index["depth"]])
		if err != nil {
			return 0, fmt.Errorf("invalid depth on line %d: %w", line, err)
		}
		pages, err := strconv.Atoi(record[index["pages_extracted"]])
		if err != nil {
			return 0, fmt.Errorf("invalid pages_extracted on line %d: %w", line, err)
		}

		entries = append(entries, HistoryEntry{
			RunID:          "import",
			URL:            record[index["url"]],
			Depth:          depth,
			PagesExtracted: pages,
			AreaLabel:      record[index["area_label"]],
		})
	}

	err = d.Execute(ctx, func(tx *sql.Tx) error {
		for _, entry := range entries {
			if err := d.insertHistory(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(entries), nil
}

func historyColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, required := range []string{"url", "depth", "pages_extracted", "area_label"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("csv header missing column %q", required)
		}
	}
	return index, nil
}
