package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups when the row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetMember(ctx context.Context, memberID int64) (Member, error) {
	var item Member
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, primary_group, post_group, extra_groups, post_count, created_at
		FROM members
		WHERE id=$1
	`, memberID).Scan(&item.ID, &item.Name, &item.Email, &item.PrimaryGroup, &item.PostGroup, &item.ExtraGroups, &item.PostCount, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	if err != nil {
		return Member{}, fmt.Errorf("get member: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID int64) (Board, error) {
	var item Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, name, description, topic_count, post_count, last_message_id, member_groups
		FROM boards
		WHERE id=$1
	`, boardID).Scan(&item.ID, &item.ParentID, &item.Name, &item.Description, &item.TopicCount, &item.PostCount, &item.LastMessageID, &item.MemberGroups)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	if err != nil {
		return Board{}, fmt.Errorf("get board: %w", err)
	}
	return item, nil
}

// TopicsInBoard lists a board's topics with the subject and author taken
// from each topic's first message, newest activity first.
func (s *PostgresStore) TopicsInBoard(ctx context.Context, boardID int64) ([]TopicListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, m.subject, m.author_name, t.reply_count, t.view_count, t.locked, t.last_message_id, t.poll_id
		FROM topics t
		JOIN messages m ON m.id = t.first_message_id
		WHERE t.board_id=$1
		ORDER BY t.last_message_id DESC, t.id DESC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board topics: %w", err)
	}
	defer rows.Close()

	items := make([]TopicListing, 0)
	for rows.Next() {
		var item TopicListing
		if err := rows.Scan(&item.ID, &item.Subject, &item.AuthorName, &item.ReplyCount, &item.ViewCount, &item.Locked, &item.LastMessageID, &item.PollID); err != nil {
			return nil, fmt.Errorf("scan board topic: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board topics: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, messageID int64) (Message, error) {
	var item Message
	err := s.db.QueryRowContext(ctx, `
		SELECT id, topic_id, board_id, author_id, author_name, subject, body, post_time, approved, modified_time, modified_name
		FROM messages
		WHERE id=$1
	`, messageID).Scan(&item.ID, &item.TopicID, &item.BoardID, &item.AuthorID, &item.AuthorName, &item.Subject, &item.Body, &item.PostTime, &item.Approved, &item.ModifiedTime, &item.ModifiedName)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetPoll(ctx context.Context, pollID int64) (Poll, error) {
	var item Poll
	err := s.db.QueryRowContext(ctx, `
		SELECT id, question, max_votes, expire_time, voting_locked, change_vote, hide_results, created_at
		FROM polls
		WHERE id=$1
	`, pollID).Scan(&item.ID, &item.Question, &item.MaxVotes, &item.ExpireTime, &item.VotingLocked, &item.ChangeVote, &item.HideResults, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Poll{}, ErrNotFound
	}
	if err != nil {
		return Poll{}, fmt.Errorf("get poll: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) PollChoices(ctx context.Context, pollID int64) ([]PollChoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poll_id, label, sort_order, votes
		FROM poll_choices
		WHERE poll_id=$1
		ORDER BY sort_order ASC, id ASC
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("list poll choices: %w", err)
	}
	defer rows.Close()

	items := make([]PollChoice, 0)
	for rows.Next() {
		var item PollChoice
		if err := rows.Scan(&item.ID, &item.PollID, &item.Label, &item.SortOrder, &item.Votes); err != nil {
			return nil, fmt.Errorf("scan poll choice: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poll choices: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) HasVoted(ctx context.Context, pollID, voterID int64) (bool, error) {
	var voted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM poll_votes WHERE poll_id=$1 AND voter_id=$2)
	`, pollID, voterID).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("check voted: %w", err)
	}
	return voted, nil
}

func (s *PostgresStore) PollVoters(ctx context.Context, pollID int64) ([]PollVoter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT v.voter_id, COALESCE(m.name, '')
		FROM poll_votes v
		LEFT JOIN members m ON m.id = v.voter_id
		WHERE v.poll_id=$1
		ORDER BY v.voter_id ASC
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("list poll voters: %w", err)
	}
	defer rows.Close()

	items := make([]PollVoter, 0)
	for rows.Next() {
		var item PollVoter
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan poll voter: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poll voters: %w", err)
	}
	return items, nil
}

// MessagePosition returns the 1-indexed position of the message in its
// topic's chronological order, ties broken by id ascending.
func (s *PostgresStore) MessagePosition(ctx context.Context, m Message) (int, error) {
	var position int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE topic_id=$1
		  AND (post_time < $2 OR (post_time = $2 AND id <= $3))
	`, m.TopicID, m.PostTime, m.ID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("message position: %w", err)
	}
	return position, nil
}
