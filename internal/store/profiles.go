package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Resinat/Prism/internal/node"
)

// Profile is a named, token-addressed view of the enabled nodes.
type Profile struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Token     string      `json:"token"`
	Format    string      `json:"format,omitempty"` // default export format
	Tags      []string    `json:"tags"`             // empty means every tag
	Types     []node.Type `json:"types"`            // empty means every type
	CreatedAt time.Time   `json:"createdAt"`
}

// CreateProfile stores p, generating its ID and token when empty.
func (s *Store) CreateProfile(p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Token == "" {
		p.Token = uuid.NewString()
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Types == nil {
		p.Types = []node.Type{}
	}
	tags, err := marshalStrings(p.Tags)
	if err != nil {
		return Profile{}, err
	}
	types, err := json.Marshal(p.Types)
	if err != nil {
		return Profile{}, fmt.Errorf("marshal profile types: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt = s.clock().UTC()
	_, err = s.db.Exec(`
		INSERT INTO profiles (id, name, token, format, tags_json, types_json, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Token, p.Format, tags, string(types), timeToNs(p.CreatedAt))
	if isUniqueViolation(err) {
		return Profile{}, ErrConflict
	}
	if err != nil {
		return Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

const selectProfileColumns = `SELECT id, name, token, format, tags_json, types_json, created_at_ns FROM profiles`

func scanProfile(row rowScanner) (Profile, error) {
	var (
		p           Profile
		tags, types string
		createdNs   int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Token, &p.Format, &tags, &types, &createdNs); err != nil {
		return Profile{}, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s tags: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(types), &p.Types); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s types: %w", p.ID, err)
	}
	p.CreatedAt = nsToTime(createdNs)
	return p, nil
}

// ListProfiles returns all profiles ordered by creation.
func (s *Store) ListProfiles() ([]Profile, error) {
	rows, err := s.db.Query(selectProfileColumns + " ORDER BY created_at_ns, id")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var result []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GetProfileByToken resolves the profile addressed by a subscription URL.
func (s *Store) GetProfileByToken(token string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRow(selectProfileColumns+" WHERE token = ?", token))
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by token: %w", err)
	}
	return p, nil
}

// DeleteProfile removes a profile by ID.
func (s *Store) DeleteProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}
	return requireAffected(res)
}
