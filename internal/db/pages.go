package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Page is a stored crawl result.
type Page struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Content   string    `json:"-"`
	Crawled   bool      `json:"crawled"`
	CreatedAt time.Time `json:"created_at"`
}

// PageStats summarises the pages table.
type PageStats struct {
	TotalPages   int `json:"total_pages"`
	CrawledPages int `json:"crawled_pages"`
}

const pageColumns = `id, url, content, crawled, created_at`

// SavePage stores content for url. If the URL is already stored the existing
// record is returned unchanged.
func (d *DB) SavePage(ctx context.Context, url, content string) (*Page, error) {
	var page *Page

	err := d.Execute(ctx, func(tx *sql.Tx) error {
		existing, err := d.pageByURL(ctx, tx, url)
		if err == nil {
			page = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		_, err = tx.ExecContext(ctx, d.rebind(`
			INSERT INTO pages (url, content, crawled, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (url) DO NOTHING`),
			url, content, true, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to insert page: %w", err)
		}

		page, err = d.pageByURL(ctx, tx, url)
		return err
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// GetPageByURL returns the stored page for url or ErrNotFound.
func (d *DB) GetPageByURL(ctx context.Context, url string) (*Page, error) {
	return d.pageByURL(ctx, d.client, url)
}

func (d *DB) pageByURL(ctx context.Context, q queryer, url string) (*Page, error) {
	var page Page
	err := q.QueryRowContext(ctx, d.rebind(`SELECT `+pageColumns+` FROM pages WHERE url = ?`), url).
		Scan(&page.ID, &page.URL, &page.Content, &page.Crawled, &page.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query page: %w", err)
	}
	return &page, nil
}

// ListPages returns stored pages ordered by id.
func (d *DB) ListPages(ctx context.Context, limit, offset int) ([]Page, error) {
	rows, err := d.client.QueryContext(ctx,
		d.rebind(`SELECT `+pageColumns+` FROM pages ORDER BY id LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var page Page
		if err := rows.Scan(&page.ID, &page.URL, &page.Content, &page.Crawled, &page.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// GetPageStats counts stored and crawled pages.
func (d *DB) GetPageStats(ctx context.Context) (*PageStats, error) {
	var stats PageStats
	err := d.client.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN crawled THEN 1 ELSE 0 END), 0)
		FROM pages`).Scan(&stats.TotalPages, &stats.CrawledPages)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	return &stats, nil
}

// ClearPages deletes every stored page.
func (d *DB) ClearPages(ctx context.Context) error {
	if _, err := d.client.ExecContext(ctx, `DELETE FROM pages`); err != nil {
		return fmt.Errorf("failed to clear pages: %w", err)
	}
	return nil
}
