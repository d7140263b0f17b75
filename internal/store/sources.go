package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SourceKind says where a source's nodes come from.
type SourceKind string

const (
	SourceKindRemote SourceKind = "remote" // subscription URL fetched on a schedule
	SourceKindPanel  SourceKind = "panel"  // X-UI inbound list pushed by the admin
	SourceKindManual SourceKind = "manual" // links pasted by the admin
)

// IsValid reports whether k is a known kind.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceKindRemote, SourceKindPanel, SourceKindManual:
		return true
	}
	return false
}

// Source is a named origin of nodes.
type Source struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Kind          SourceKind `json:"kind"`
	URL           string     `json:"url,omitempty"`
	Enabled       bool       `json:"enabled"`
	Tags          []string   `json:"tags"`
	NodeCount     int        `json:"nodeCount"`
	LastError     string     `json:"lastError,omitempty"`
	LastFetchedAt time.Time  `json:"lastFetchedAt,omitzero"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// UpsertSource inserts or updates a source by ID and returns the stored
// row. Fetch bookkeeping is left untouched on update. A name already used
// by another source yields ErrConflict.
func (s *Store) UpsertSource(src Source) (Source, error) {
	tags, err := marshalStrings(src.Tags)
	if err != nil {
		return Source{}, err
	}

	s.mu.Lock()
	now := timeToNs(s.clock())
	_, err = s.db.Exec(`
		INSERT INTO sources (id, name, kind, url, enabled, tags_json, created_at_ns, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			kind          = excluded.kind,
			url           = excluded.url,
			enabled       = excluded.enabled,
			tags_json     = excluded.tags_json,
			updated_at_ns = excluded.updated_at_ns
	`, src.ID, src.Name, string(src.Kind), src.URL, boolToInt(src.Enabled), tags, now, now)
	s.mu.Unlock()
	if isUniqueViolation(err) {
		return Source{}, ErrConflict
	}
	if err != nil {
		return Source{}, fmt.Errorf("upsert source %s: %w", src.ID, err)
	}
	return s.GetSource(src.ID)
}

const selectSourceColumns = `
	SELECT id, name, kind, url, enabled, tags_json, node_count, last_error,
	       last_fetched_at_ns, created_at_ns, updated_at_ns
	FROM sources`

func scanSource(row rowScanner) (Source, error) {
	var (
		src                             Source
		kind, tags                      string
		enabled                         int
		fetchedNs, createdNs, updatedNs int64
	)
	if err := row.Scan(&src.ID, &src.Name, &kind, &src.URL, &enabled, &tags, &src.NodeCount,
		&src.LastError, &fetchedNs, &createdNs, &updatedNs); err != nil {
		return Source{}, err
	}
	src.Kind = SourceKind(kind)
	src.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(tags), &src.Tags); err != nil {
		return Source{}, fmt.Errorf("decode source %s tags: %w", src.ID, err)
	}
	src.LastFetchedAt = nsToTime(fetchedNs)
	src.CreatedAt = nsToTime(createdNs)
	src.UpdatedAt = nsToTime(updatedNs)
	return src, nil
}

// GetSource returns a source by ID.
func (s *Store) GetSource(id string) (Source, error) {
	src, err := scanSource(s.db.QueryRow(selectSourceColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, ErrNotFound
	}
	if err != nil {
		return Source{}, fmt.Errorf("get source %s: %w", id, err)
	}
	return src, nil
}

// ListSources returns all sources ordered by creation.
func (s *Store) ListSources() ([]Source, error) {
	rows, err := s.db.Query(selectSourceColumns + " ORDER BY created_at_ns, id")
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var result []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, src)
	}
	return result, rows.Err()
}

// DeleteSource removes a source and every node it produced.
func (s *Store) DeleteSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete source tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM nodes WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete nodes of source %s: %w", id, err)
	}
	return tx.Commit()
}

// MarkSourceResult records the outcome of a fetch or sync. An empty
// errMsg clears the previous error; nodeCount is only updated on success.
func (s *Store) MarkSourceResult(id string, at time.Time, nodeCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	if errMsg == "" {
		res, err = s.db.Exec(`
			UPDATE sources SET last_fetched_at_ns = ?, node_count = ?, last_error = ''
			WHERE id = ?`, timeToNs(at), nodeCount, id)
	} else {
		res, err = s.db.Exec(`
			UPDATE sources SET last_fetched_at_ns = ?, last_error = ?
			WHERE id = ?`, timeToNs(at), errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("mark source %s: %w", id, err)
	}
	return requireAffected(res)
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal string list: %w", err)
	}
	return string(raw), nil
}
