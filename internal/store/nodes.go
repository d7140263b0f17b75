package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Resinat/Prism/internal/node"
)

// NodeFilter narrows ListNodes. Zero fields do not filter.
type NodeFilter struct {
	SourceID    string
	Types       []node.Type
	Tags        []string // node must carry at least one
	EnabledOnly bool
	Search      string // case-insensitive substring of the name
}

// StoredNode is a node together with its storage bookkeeping.
type StoredNode struct {
	node.Node
	ContentHash string `json:"contentHash"`
	Position    int64  `json:"position"`
}

// UpsertNodes stores nodes in order, reporting how many rows were inserted
// and updated.
//
// A node with SourceNodeID replaces the row of the same source holding the
// same SourceNodeID; any other node replaces the row with the same content
// fingerprint. A replaced row keeps its id, creation time, admin enabled
// switch and list position. Nodes whose new content collides with a different row are
// dropped and logged.
func (s *Store) UpsertNodes(nodes []node.Node) (inserted, updated int, err error) {
	if len(nodes) == 0 {
		return 0, 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin upsert nodes tx: %w", err)
	}
	defer tx.Rollback()

	var nextPos int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM nodes`).Scan(&nextPos); err != nil {
		return 0, 0, fmt.Errorf("read node position: %w", err)
	}

	insertStmt, err := tx.Prepare(`
		INSERT INTO nodes (id, fingerprint, source_node_id, source_id, type, name,
		                   enabled, source_enabled, position, node_json, created_at_ns, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare insert node: %w", err)
	}
	defer insertStmt.Close()

	updateStmt, err := tx.Prepare(`
		UPDATE nodes SET
			fingerprint    = ?,
			source_node_id = ?,
			source_id      = ?,
			type           = ?,
			name           = ?,
			source_enabled = ?,
			node_json      = ?,
			updated_at_ns  = ?
		WHERE id = ?`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare update node: %w", err)
	}
	defer updateStmt.Close()

	now := s.clock()
	for _, n := range nodes {
		fp := node.Fingerprint(n).Hex()
		key := upstreamKey(n)
		existingID, err := findExistingNode(tx, n.SourceID, key, fp)
		if err != nil {
			return 0, 0, err
		}

		if n.UpdatedAt.IsZero() {
			n.UpdatedAt = now
		}
		raw, err := json.Marshal(n)
		if err != nil {
			return 0, 0, fmt.Errorf("marshal node %s: %w", n.ID, err)
		}

		if existingID != "" {
			_, err := updateStmt.Exec(fp, nullable(key), n.SourceID, string(n.Type), n.Name,
				boolToInt(n.Enabled), string(raw), timeToNs(n.UpdatedAt), existingID)
			if isUniqueViolation(err) {
				logrus.Warnf("[store] node %q duplicates another stored node, skipped", n.Name)
				continue
			}
			if err != nil {
				return 0, 0, fmt.Errorf("update node %s: %w", existingID, err)
			}
			updated++
			continue
		}

		id := n.ID
		if id == "" {
			id = fmt.Sprintf("%s-%s", n.Type, uuid.NewString())
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		exec := func(id string) error {
			_, err := insertStmt.Exec(id, fp, nullable(key), n.SourceID, string(n.Type), n.Name,
				boolToInt(n.Enabled), nextPos, string(raw), timeToNs(n.CreatedAt), timeToNs(n.UpdatedAt))
			return err
		}
		err = exec(id)
		if isUniqueViolation(err) {
			// Generated ids only collide across batches created in the
			// same millisecond.
			id = fmt.Sprintf("%s-%s", id, uuid.NewString()[:8])
			err = exec(id)
		}
		if err != nil {
			return 0, 0, fmt.Errorf("insert node %s: %w", id, err)
		}
		nextPos++
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit upsert nodes: %w", err)
	}
	return inserted, updated, nil
}

// upstreamKey is the value stored in source_node_id. Nodes outside any
// source are scoped by server, so two panels reusing an inbound id and
// client stay apart.
func upstreamKey(n node.Node) string {
	if n.SourceNodeID == "" || n.SourceID != "" {
		return n.SourceNodeID
	}
	return n.Server + "/" + n.SourceNodeID
}

// findExistingNode returns the id of the row n replaces. Upstream keys are
// only unique within their source.
func findExistingNode(tx *sql.Tx, sourceID, sourceNodeID, fingerprint string) (string, error) {
	var id string
	var err error
	if sourceNodeID != "" {
		err = tx.QueryRow(`SELECT id FROM nodes WHERE source_id = ? AND source_node_id = ?`,
			sourceID, sourceNodeID).Scan(&id)
	} else {
		err = tx.QueryRow(`SELECT id FROM nodes WHERE fingerprint = ?`, fingerprint).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup node: %w", err)
	}
	return id, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const selectNodeColumns = `SELECT id, fingerprint, enabled, source_enabled, position, node_json, created_at_ns FROM nodes`

// ListNodes returns the stored nodes matching filter in insertion order.
func (s *Store) ListNodes(filter NodeFilter) ([]StoredNode, error) {
	var (
		where []string
		args  []any
	)
	if filter.SourceID != "" {
		where = append(where, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if len(filter.Types) > 0 {
		marks := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.EnabledOnly {
		where = append(where, "enabled = 1 AND source_enabled = 1")
	}
	if filter.Search != "" {
		where = append(where, "instr(lower(name), lower(?)) > 0")
		args = append(args, filter.Search)
	}

	query := selectNodeColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY position, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var result []StoredNode
	for rows.Next() {
		sn, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if len(filter.Tags) > 0 && !hasAnyTag(sn.Node, filter.Tags) {
			continue
		}
		result = append(result, sn)
	}
	return result, rows.Err()
}

func hasAnyTag(n node.Node, tags []string) bool {
	for _, tag := range tags {
		if n.HasTag(tag) {
			return true
		}
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (StoredNode, error) {
	var (
		sn            StoredNode
		id            string
		enabled       int
		sourceEnabled int
		raw           string
		createdNs     int64
	)
	if err := row.Scan(&id, &sn.ContentHash, &enabled, &sourceEnabled, &sn.Position, &raw, &createdNs); err != nil {
		return StoredNode{}, err
	}
	if err := json.Unmarshal([]byte(raw), &sn.Node); err != nil {
		return StoredNode{}, fmt.Errorf("decode node %s: %w", id, err)
	}
	sn.ID = id
	sn.Enabled = enabled == 1 && sourceEnabled == 1
	sn.CreatedAt = nsToTime(createdNs)
	return sn, nil
}

// GetNode returns one node by id.
func (s *Store) GetNode(id string) (StoredNode, error) {
	sn, err := scanNode(s.db.QueryRow(selectNodeColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return StoredNode{}, ErrNotFound
	}
	if err != nil {
		return StoredNode{}, fmt.Errorf("get node %s: %w", id, err)
	}
	return sn, nil
}

// SetNodeEnabled flips the admin switch of a node. A node disabled at its
// source stays excluded from exports either way.
func (s *Store) SetNodeEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE nodes SET enabled = ?, updated_at_ns = ? WHERE id = ?`,
		boolToInt(enabled), timeToNs(s.clock()), id)
	if err != nil {
		return fmt.Errorf("set node %s enabled: %w", id, err)
	}
	return requireAffected(res)
}

// DeleteNode removes a node by id.
func (s *Store) DeleteNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return requireAffected(res)
}

// DeleteNodesBySource removes the nodes of sourceID whose fingerprint is
// not in keep, returning how many were removed.
func (s *Store) DeleteNodesBySource(sourceID string, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id, fingerprint FROM nodes WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("list source nodes: %w", err)
	}
	kept := make(map[string]struct{}, len(keep))
	for _, fp := range keep {
		kept[fp] = struct{}{}
	}
	var stale []string
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := kept[fp]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	stmt, err := tx.Prepare(`DELETE FROM nodes WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare prune: %w", err)
	}
	defer stmt.Close()
	for _, id := range stale {
		if _, err := stmt.Exec(id); err != nil {
			return 0, fmt.Errorf("prune node %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return len(stale), nil
}

// CountNodes returns the number of stored and exportable nodes.
func (s *Store) CountNodes() (total, enabled int, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN enabled = 1 AND source_enabled = 1 THEN 1 ELSE 0 END), 0)
		FROM nodes`).Scan(&total, &enabled)
	if err != nil {
		return 0, 0, fmt.Errorf("count nodes: %w", err)
	}
	return total, enabled, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
