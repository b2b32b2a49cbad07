package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateVoiceSession creates a new voice conversation for a buyer.
func (s *PostgresStore) CreateVoiceSession(ctx context.Context, buyerID string, lotID *string, metadata map[string]any) (string, error) {
	if buyerID == "" {
		return "", fmt.Errorf("buyer_id is required")
	}

	sessionID := uuid.New().String()

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO greenchain_voice_sessions (id, buyer_id, lot_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`

	_, err = s.getQuerier(ctx).Exec(ctx, query, sessionID, buyerID, lotID, metadataJSON)
	if err != nil {
		return "", fmt.Errorf("failed to create voice session: %w", err)
	}

	return sessionID, nil
}

// GetVoiceSession retrieves a voice session by ID
func (s *PostgresStore) GetVoiceSession(ctx context.Context, sessionID string) (*VoiceSession, error) {
	query := `
		SELECT id, buyer_id, lot_id, metadata, created_at, updated_at
		FROM greenchain_voice_sessions
		WHERE id = $1
	`

	var session VoiceSession
	var metadataJSON []byte

	err := s.getQuerier(ctx).QueryRow(ctx, query, sessionID).Scan(
		&session.ID,
		&session.BuyerID,
		&session.LotID,
		&metadataJSON,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("voice session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice session: %w", err)
	}

	if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &session, nil
}

// SaveVoiceMessage appends a turn to a session and bumps the session's
// updated_at.
func (s *PostgresStore) SaveVoiceMessage(ctx context.Context, msg *VoiceMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO greenchain_voice_messages (id, session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.getQuerier(ctx).Exec(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save voice message: %w", err)
	}

	touch := `UPDATE greenchain_voice_sessions SET updated_at = NOW() WHERE id = $1`
	if _, err := s.getQuerier(ctx).Exec(ctx, touch, msg.SessionID); err != nil {
		return fmt.Errorf("failed to touch voice session: %w", err)
	}

	return nil
}

// GetVoiceMessages retrieves all turns for a session ordered by creation time
func (s *PostgresStore) GetVoiceMessages(ctx context.Context, sessionID string) ([]*VoiceMessage, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM greenchain_voice_messages
		WHERE session_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query voice messages: %w", err)
	}
	defer rows.Close()

	var messages []*VoiceMessage
	for rows.Next() {
		var msg VoiceMessage
		err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voice message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating voice messages: %w", err)
	}

	return messages, nil
}
