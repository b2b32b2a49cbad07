package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// RegisterInstance registers a backend instance, or refreshes its record if
// it is already registered.
func (s *PostgresStore) RegisterInstance(ctx context.Context, params *RegisterInstanceParams) error {
	metadataJSON, err := json.Marshal(params.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO greenchain_instances (id, hostname, pid, version, metadata, created_at, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			pid = EXCLUDED.pid,
			version = EXCLUDED.version,
			metadata = EXCLUDED.metadata,
			last_heartbeat_at = NOW()
	`

	_, err = s.getQuerier(ctx).Exec(ctx, query,
		params.ID,
		params.Hostname,
		params.PID,
		params.Version,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}

	return nil
}

// UpdateInstanceHeartbeat updates the last_heartbeat_at for an instance.
func (s *PostgresStore) UpdateInstanceHeartbeat(ctx context.Context, instanceID string) error {
	query := `
		UPDATE greenchain_instances
		SET last_heartbeat_at = NOW()
		WHERE id = $1
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query, instanceID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instance %s: %w", instanceID, ErrNotFound)
	}

	return nil
}

// DeregisterInstance removes an instance from the cluster.
func (s *PostgresStore) DeregisterInstance(ctx context.Context, instanceID string) error {
	query := `DELETE FROM greenchain_instances WHERE id = $1`

	_, err := s.getQuerier(ctx).Exec(ctx, query, instanceID)
	if err != nil {
		return fmt.Errorf("failed to deregister instance: %w", err)
	}

	return nil
}

// GetStaleInstances returns instance IDs that haven't heartbeated since the
// horizon.
func (s *PostgresStore) GetStaleInstances(ctx context.Context, olderThan time.Time) ([]string, error) {
	query := `
		SELECT id FROM greenchain_instances
		WHERE last_heartbeat_at < $1
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale instances: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan instance id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return ids, nil
}

// CountActiveInstances counts instances with a heartbeat at or after the
// given time.
func (s *PostgresStore) CountActiveInstances(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM greenchain_instances WHERE last_heartbeat_at >= $1`

	var count int
	if err := s.getQuerier(ctx).QueryRow(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}

	return count, nil
}

// LeaderAttemptElect attempts to elect this instance as leader.
func (s *PostgresStore) LeaderAttemptElect(ctx context.Context, params *LeaderElectParams) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(params.TTL)

	query := `
		INSERT INTO greenchain_leader (name, leader_id, elected_at, expires_at)
		VALUES ('default', $1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query, params.LeaderID, now, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to attempt election: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// LeaderAttemptReelect attempts to renew leadership.
func (s *PostgresStore) LeaderAttemptReelect(ctx context.Context, params *LeaderElectParams) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(params.TTL)

	query := `
		UPDATE greenchain_leader
		SET elected_at = $2, expires_at = $3
		WHERE name = 'default' AND leader_id = $1
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query, params.LeaderID, now, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to attempt reelection: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// LeaderResign voluntarily gives up leadership.
func (s *PostgresStore) LeaderResign(ctx context.Context, leaderID string) error {
	query := `DELETE FROM greenchain_leader WHERE name = 'default' AND leader_id = $1`

	_, err := s.getQuerier(ctx).Exec(ctx, query, leaderID)
	if err != nil {
		return fmt.Errorf("failed to resign leadership: %w", err)
	}

	return nil
}

// LeaderDeleteExpired removes expired leader entries.
func (s *PostgresStore) LeaderDeleteExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM greenchain_leader WHERE expires_at < NOW()`

	tag, err := s.getQuerier(ctx).Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired leader: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// LeaderGetCurrent returns the current leader, or nil if none.
func (s *PostgresStore) LeaderGetCurrent(ctx context.Context) (*Leader, error) {
	query := `
		SELECT name, leader_id, elected_at, expires_at
		FROM greenchain_leader
		WHERE name = 'default' AND expires_at > NOW()
	`

	var leader Leader
	err := s.getQuerier(ctx).QueryRow(ctx, query).Scan(
		&leader.Name,
		&leader.LeaderID,
		&leader.ElectedAt,
		&leader.ExpiresAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current leader: %w", err)
	}

	return &leader, nil
}
