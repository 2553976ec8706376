package store

import (
	"context"
	"fmt"
)

// BrokenTopicPointers lists topics whose last_message_id references a
// message that no longer exists or belongs to another topic.
func (s *PostgresStore) BrokenTopicPointers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id
		FROM topics t
		LEFT JOIN messages m ON m.id = t.last_message_id AND m.topic_id = t.id
		WHERE m.id IS NULL
		ORDER BY t.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list broken topic pointers: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan broken topic pointer: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate broken topic pointers: %w", err)
	}
	return ids, nil
}

// BrokenBoardPointers lists boards whose non-zero last_message_id
// references a message that no longer exists or belongs to another board.
func (s *PostgresStore) BrokenBoardPointers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id
		FROM boards b
		LEFT JOIN messages m ON m.id = b.last_message_id AND m.board_id = b.id
		WHERE b.last_message_id <> 0 AND m.id IS NULL
		ORDER BY b.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list broken board pointers: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan broken board pointer: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate broken board pointers: %w", err)
	}
	return ids, nil
}

// FixTopicPointer recomputes a topic's last_message_id from the messages
// actually present. Idempotent.
func (s *PostgresStore) FixTopicPointer(ctx context.Context, topicID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE topics SET last_message_id = COALESCE((
			SELECT id FROM messages
			WHERE topic_id=$1
			ORDER BY post_time DESC, id DESC
			LIMIT 1
		), 0)
		WHERE id=$1
	`, topicID)
	if err != nil {
		return fmt.Errorf("fix topic pointer %d: %w", topicID, err)
	}
	return nil
}

// FixBoardPointer recomputes a board's last_message_id from the approved
// messages currently assigned to it, 0 when none remain. Idempotent.
func (s *PostgresStore) FixBoardPointer(ctx context.Context, boardID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE boards SET last_message_id = COALESCE((
			SELECT id FROM messages
			WHERE board_id=$1 AND approved
			ORDER BY post_time DESC, id DESC
			LIMIT 1
		), 0)
		WHERE id=$1
	`, boardID)
	if err != nil {
		return fmt.Errorf("fix board pointer %d: %w", boardID, err)
	}
	return nil
}
