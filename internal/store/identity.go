// ABOUTME: Identity mappings between local, chat and game accounts
// ABOUTME: IDs match exactly; usernames match case-insensitively; exact ID wins

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const identityColumns = `local_id, chat_id, chat_username, game_id, game_username, created_at, updated_at`

// GetIdentityByChatID resolves by chat account ID or chat username
func (s *SQLStore) GetIdentityByChatID(ctx context.Context, id string) (*IdentityMapping, error) {
	query := `
		SELECT ` + identityColumns + ` FROM identity_mappings
		WHERE chat_id = ? OR lower(chat_username) = lower(?)
		ORDER BY CASE WHEN chat_id = ? THEN 0 ELSE 1 END, local_id
		LIMIT 1
	`
	return scanIdentity(s.queryRow(ctx, query, id, id, id))
}

// GetIdentityByGameID resolves by game account ID or game username
func (s *SQLStore) GetIdentityByGameID(ctx context.Context, id string) (*IdentityMapping, error) {
	query := `
		SELECT ` + identityColumns + ` FROM identity_mappings
		WHERE game_id = ? OR lower(game_username) = lower(?)
		ORDER BY CASE WHEN game_id = ? THEN 0 ELSE 1 END, local_id
		LIMIT 1
	`
	return scanIdentity(s.queryRow(ctx, query, id, id, id))
}

// GetIdentityByLocalID resolves by the local account ID
func (s *SQLStore) GetIdentityByLocalID(ctx context.Context, id string) (*IdentityMapping, error) {
	return scanIdentity(s.queryRow(ctx,
		`SELECT `+identityColumns+` FROM identity_mappings WHERE local_id = ?`, id))
}

// UpsertIdentityMapping creates or replaces the mapping for m.LocalID
func (s *SQLStore) UpsertIdentityMapping(ctx context.Context, m *IdentityMapping) error {
	if m.LocalID == "" {
		return errors.New("identity mapping requires a local id")
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `
		INSERT INTO identity_mappings (` + identityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (local_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			chat_username = excluded.chat_username,
			game_id = excluded.game_id,
			game_username = excluded.game_username,
			updated_at = excluded.updated_at
	`

	_, err := s.exec(ctx, query,
		m.LocalID,
		nullString(m.ChatID),
		nullString(m.ChatUsername),
		nullString(m.GameID),
		nullString(m.GameUsername),
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return unavailable("upserting identity mapping", err)
	}

	s.logger.Debug("upserted identity mapping", "local_id", m.LocalID, "chat_id", m.ChatID, "game_id", m.GameID)
	return nil
}

func scanIdentity(row rowScanner) (*IdentityMapping, error) {
	var m IdentityMapping
	var chatID, chatUser, gameID, gameUser sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&m.LocalID, &chatID, &chatUser, &gameID, &gameUser, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scanning identity mapping", err)
	}

	m.ChatID = chatID.String
	m.ChatUsername = chatUser.String
	m.GameID = gameID.String
	m.GameUsername = gameUser.String
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("identity %s: %w", m.LocalID, err)
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("identity %s: %w", m.LocalID, err)
	}
	return &m, nil
}
