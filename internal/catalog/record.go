package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Container is one scanned archive on disk
type Container struct {
	ID        int64
	Path      string
	Size      int64
	ScannedAt time.Time
}

// Payload is one indexed key inside a scanned container
type Payload struct {
	ContainerPath string
	Key           string
	Size          int64
}

// PayloadInfo carries the per-key facts recorded during a scan
type PayloadInfo struct {
	Key  string
	Size int64
}

// RecordContainer upserts the container row and replaces its payload rows in
// a single transaction. Re-scanning the same path never leaves stale keys.
func (c *Catalog) RecordContainer(ctx context.Context, path string, size int64, payloads []PayloadInfo) error {
	if c.db == nil {
		return fmt.Errorf("catalog connection is closed")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO containers (path, size, scanned_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size = excluded.size, scanned_at = excluded.scanned_at
		RETURNING id
	`, path, size, time.Now().UTC()).Scan(&id)
	if err != nil {
		return fmt.Errorf("recording container %s: %w", path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM payloads WHERE container_id = ?`, id); err != nil {
		return fmt.Errorf("clearing stale payload rows for %s: %w", path, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO payloads (container_id, key, size) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing payload insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range payloads {
		if _, err := stmt.ExecContext(ctx, id, p.Key, p.Size); err != nil {
			return fmt.Errorf("recording payload %s in %s: %w", p.Key, path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scan of %s: %w", path, err)
	}

	slog.Debug("Recorded container", "path", path, "payloads", len(payloads))
	return nil
}

// Containers lists every scanned container, ordered by path
func (c *Catalog) Containers(ctx context.Context) ([]Container, error) {
	rows, err := c.Query(ctx, `SELECT id, path, size, scanned_at FROM containers ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Container
	for rows.Next() {
		var ct Container
		if err := rows.Scan(&ct.ID, &ct.Path, &ct.Size, &ct.ScannedAt); err != nil {
			return nil, fmt.Errorf("scanning container row: %w", err)
		}
		out = append(out, ct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating containers: %w", err)
	}

	return out, nil
}

// Payloads lists the recorded keys of one container
func (c *Catalog) Payloads(ctx context.Context, containerPath string) ([]Payload, error) {
	return c.payloadQuery(ctx, `
		SELECT c.path, p.key, p.size FROM payloads p
		JOIN containers c ON c.id = p.container_id
		WHERE c.path = ? ORDER BY p.key
	`, containerPath)
}

// FindKey lists every container holding the given key
func (c *Catalog) FindKey(ctx context.Context, key string) ([]Payload, error) {
	return c.payloadQuery(ctx, `
		SELECT c.path, p.key, p.size FROM payloads p
		JOIN containers c ON c.id = p.container_id
		WHERE p.key = ? ORDER BY c.path
	`, key)
}

func (c *Catalog) payloadQuery(ctx context.Context, query string, args ...interface{}) ([]Payload, error) {
	rows, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payload
	for rows.Next() {
		var p Payload
		if err := rows.Scan(&p.ContainerPath, &p.Key, &p.Size); err != nil {
			return nil, fmt.Errorf("scanning payload row: %w", err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payloads: %w", err)
	}

	return out, nil
}
