package store

import (
	"context"
	"fmt"
)

// AddDynamicPartitions appends keys to the dynamic definition name. Keys
// already present are skipped. It returns the keys that were added, in order.
func (s *Store) AddDynamicPartitions(ctx context.Context, name string, keys ...string) ([]string, error) {
	if name == "" {
		return nil, fmt.Errorf("add dynamic partitions: name is empty")
	}
	for _, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("add dynamic partitions %s: empty partition key", name)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("add dynamic partitions %s: begin: %w", name, err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM dynamic_partitions WHERE name = ?`, name,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("add dynamic partitions %s: %w", name, err)
	}

	added := []string{}
	for _, k := range keys {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO dynamic_partitions (name, partition_key, position)
			VALUES (?, ?, ?)
			ON CONFLICT(name, partition_key) DO NOTHING
		`, name, k, next)
		if err != nil {
			return nil, fmt.Errorf("add dynamic partitions %s: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("add dynamic partitions %s: %w", name, err)
		}
		if n > 0 {
			added = append(added, k)
			next++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("add dynamic partitions %s: commit: %w", name, err)
	}
	return added, nil
}

// ReadDynamicPartitions returns the keys of name in insertion order.
func (s *Store) ReadDynamicPartitions(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT partition_key FROM dynamic_partitions
		WHERE name = ?
		ORDER BY position ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("read dynamic partitions %s: %w", name, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("read dynamic partitions %s: %w", name, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read dynamic partitions %s: %w", name, err)
	}
	return keys, nil
}

// DynamicPartitionNames returns the names that have at least one key,
// sorted.
func (s *Store) DynamicPartitionNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT name FROM dynamic_partitions ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read dynamic partition names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("read dynamic partition names: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
