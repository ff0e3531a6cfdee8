package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/fleek/internal/character"
)

var ErrNotFound = errors.New("character not found")

// Character is a saved copy of a session's document.
type Character struct {
	ID        uuid.UUID          `json:"id"`
	SessionID uuid.UUID          `json:"session_id"`
	Name      string             `json:"name"`
	Document  character.Document `json:"character"`
	CreatedAt time.Time          `json:"created_at"`
}

// SaveCharacter inserts a new saved copy. Every save is a new row so earlier
// copies of the same session remain available.
func (s *Store) SaveCharacter(ctx context.Context, sessionID uuid.UUID, doc character.Document) (uuid.UUID, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal document: %w", err)
	}

	id := uuid.New()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO characters (id, session_id, name, document, created_at)
		VALUES ($1, $2, $3, $4::jsonb, now())`,
		id, sessionID, doc.Name, string(data),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert character: %w", err)
	}
	return id, nil
}

func (s *Store) GetCharacter(ctx context.Context, id uuid.UUID) (Character, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, session_id, name, document, created_at
		FROM characters WHERE id = $1`, id)

	c, err := scanCharacter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Character{}, ErrNotFound
	}
	if err != nil {
		return Character{}, fmt.Errorf("get character: %w", err)
	}
	return c, nil
}

// ListCharacters returns the most recently saved characters first.
func (s *Store) ListCharacters(ctx context.Context, limit int) ([]Character, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, name, document, created_at
		FROM characters ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	out := []Character{}
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCharacter(row pgx.Row) (Character, error) {
	var c Character
	var raw []byte
	if err := row.Scan(&c.ID, &c.SessionID, &c.Name, &raw, &c.CreatedAt); err != nil {
		return Character{}, err
	}
	if err := json.Unmarshal(raw, &c.Document); err != nil {
		return Character{}, fmt.Errorf("decode document: %w", err)
	}
	return c, nil
}
