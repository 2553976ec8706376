package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"time"
)

// Advisory lock namespaces. Id allocation follows the legacy max+1 scheme,
// so concurrent allocators must serialize on the table-wide lock. Vote
// locks serialize per (poll, voter).
const (
	lockMessageIDs int64 = 0x7061726c01
	lockTopicIDs   int64 = 0x7061726c02
	lockPollIDs    int64 = 0x7061726c03
)

type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

func (s *PostgresStore) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, ctx: ctx}, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

func (t *Tx) BoardForUpdate(boardID int64) (Board, error) {
	var item Board
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id, parent_id, name, description, topic_count, post_count, last_message_id, member_groups
		FROM boards
		WHERE id=$1
		FOR UPDATE
	`, boardID).Scan(&item.ID, &item.ParentID, &item.Name, &item.Description, &item.TopicCount, &item.PostCount, &item.LastMessageID, &item.MemberGroups)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	if err != nil {
		return Board{}, fmt.Errorf("lock board: %w", err)
	}
	return item, nil
}

func (t *Tx) TopicForUpdate(topicID int64) (Topic, error) {
	var item Topic
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id, board_id, first_message_id, last_message_id, reply_count, view_count, locked, poll_id
		FROM topics
		WHERE id=$1
		FOR UPDATE
	`, topicID).Scan(&item.ID, &item.BoardID, &item.FirstMessageID, &item.LastMessageID, &item.ReplyCount, &item.ViewCount, &item.Locked, &item.PollID)
	if errors.Is(err, sql.ErrNoRows) {
		return Topic{}, ErrNotFound
	}
	if err != nil {
		return Topic{}, fmt.Errorf("lock topic: %w", err)
	}
	return item, nil
}

func (t *Tx) GetMessage(messageID int64) (Message, error) {
	var item Message
	err := t.tx.QueryRowContext(t.ctx, `
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

func (t *Tx) nextID(lockKey int64, table string) (int64, error) {
	if _, err := t.tx.ExecContext(t.ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return 0, fmt.Errorf("id lock: %w", err)
	}
	var next int64
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM `+table).Scan(&next); err != nil {
		return 0, fmt.Errorf("next %s id: %w", table, err)
	}
	return next, nil
}

func (t *Tx) NextMessageID() (int64, error) { return t.nextID(lockMessageIDs, "messages") }
func (t *Tx) NextTopicID() (int64, error)   { return t.nextID(lockTopicIDs, "topics") }
func (t *Tx) NextPollID() (int64, error)    { return t.nextID(lockPollIDs, "polls") }

func (t *Tx) InsertMessage(m Message) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO messages (id, topic_id, board_id, author_id, author_name, subject, body, post_time, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.TopicID, m.BoardID, m.AuthorID, m.AuthorName, m.Subject, m.Body, m.PostTime, m.Approved)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (t *Tx) InsertTopic(topic Topic) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO topics (id, board_id, first_message_id, last_message_id, reply_count, view_count, locked, poll_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, topic.ID, topic.BoardID, topic.FirstMessageID, topic.LastMessageID, topic.ReplyCount, topic.ViewCount, topic.Locked, topic.PollID)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

func (t *Tx) InsertPoll(poll Poll) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO polls (id, question, max_votes, expire_time, voting_locked, change_vote, hide_results)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, poll.ID, poll.Question, poll.MaxVotes, poll.ExpireTime, poll.VotingLocked, poll.ChangeVote, poll.HideResults)
	if err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}
	return nil
}

func (t *Tx) InsertPollChoice(choice PollChoice) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO poll_choices (id, poll_id, label, sort_order, votes)
		VALUES ($1, $2, $3, $4, $5)
	`, choice.ID, choice.PollID, choice.Label, choice.SortOrder, choice.Votes)
	if err != nil {
		return fmt.Errorf("insert poll choice: %w", err)
	}
	return nil
}

func (t *Tx) NextChoiceID() (int64, error) {
	var next int64
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM poll_choices`).Scan(&next); err != nil {
		return 0, fmt.Errorf("next choice id: %w", err)
	}
	return next, nil
}

func (t *Tx) UpdateBoardCounters(boardID int64, topicCount, postCount int, lastMessageID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE boards SET topic_count=$2, post_count=$3, last_message_id=$4 WHERE id=$1
	`, boardID, topicCount, postCount, lastMessageID)
	if err != nil {
		return fmt.Errorf("update board counters: %w", err)
	}
	return nil
}

func (t *Tx) UpdateTopicCounters(topicID int64, replyCount int, lastMessageID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE topics SET reply_count=$2, last_message_id=$3 WHERE id=$1
	`, topicID, replyCount, lastMessageID)
	if err != nil {
		return fmt.Errorf("update topic counters: %w", err)
	}
	return nil
}

func (t *Tx) SetTopicLocked(topicID int64, locked bool) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE topics SET locked=$2 WHERE id=$1`, topicID, locked)
	if err != nil {
		return fmt.Errorf("set topic locked: %w", err)
	}
	return nil
}

func (t *Tx) SetMessageEdited(messageID int64, subject, body string, modifiedAt time.Time, modifiedName string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE messages SET subject=$2, body=$3, modified_time=$4, modified_name=$5 WHERE id=$1
	`, messageID, subject, body, modifiedAt, modifiedName)
	if err != nil {
		return fmt.Errorf("set message edited: %w", err)
	}
	return nil
}

func (t *Tx) DeleteMessage(messageID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (t *Tx) DeleteTopicMessages(topicID int64) (int, error) {
	result, err := t.tx.ExecContext(t.ctx, `DELETE FROM messages WHERE topic_id=$1`, topicID)
	if err != nil {
		return 0, fmt.Errorf("delete topic messages: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete topic messages rows: %w", err)
	}
	return int(affected), nil
}

func (t *Tx) DeleteTopic(topicID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM topics WHERE id=$1`, topicID)
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

// LatestMessageInTopic returns 0 when the topic has no messages left.
func (t *Tx) LatestMessageInTopic(topicID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT COALESCE((
			SELECT id FROM messages
			WHERE topic_id=$1
			ORDER BY post_time DESC, id DESC
			LIMIT 1
		), 0)
	`, topicID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("latest topic message: %w", err)
	}
	return id, nil
}

// LatestMessageInBoard considers only approved messages, matching what
// board listings show.
func (t *Tx) LatestMessageInBoard(boardID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT COALESCE((
			SELECT id FROM messages
			WHERE board_id=$1 AND approved
			ORDER BY post_time DESC, id DESC
			LIMIT 1
		), 0)
	`, boardID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("latest board message: %w", err)
	}
	return id, nil
}

func (t *Tx) ReassignTopic(topicID, boardID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE topics SET board_id=$2 WHERE id=$1`, topicID, boardID)
	if err != nil {
		return fmt.Errorf("reassign topic: %w", err)
	}
	return nil
}

func (t *Tx) ReassignTopicMessages(topicID, boardID int64) (int, error) {
	result, err := t.tx.ExecContext(t.ctx, `UPDATE messages SET board_id=$2 WHERE topic_id=$1`, topicID, boardID)
	if err != nil {
		return 0, fmt.Errorf("reassign topic messages: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reassign topic messages rows: %w", err)
	}
	return int(affected), nil
}

func (t *Tx) AdjustMemberPostCount(memberID int64, delta int) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE members SET post_count = GREATEST(post_count + $2, 0) WHERE id=$1
	`, memberID, delta)
	if err != nil {
		return fmt.Errorf("adjust member post count: %w", err)
	}
	return nil
}

func (t *Tx) HasOpenReport(messageID, reporterID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT EXISTS(SELECT 1 FROM reports WHERE message_id=$1 AND reporter_id=$2 AND NOT closed)
	`, messageID, reporterID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open report: %w", err)
	}
	return exists, nil
}

func (t *Tx) InsertReport(r Report) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx, `
		INSERT INTO reports (message_id, topic_id, board_id, reporter_id, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, r.MessageID, r.TopicID, r.BoardID, r.ReporterID, r.Comment).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return id, nil
}

func (t *Tx) PollForUpdate(pollID int64) (Poll, error) {
	var item Poll
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id, question, max_votes, expire_time, voting_locked, change_vote, hide_results, created_at
		FROM polls
		WHERE id=$1
		FOR UPDATE
	`, pollID).Scan(&item.ID, &item.Question, &item.MaxVotes, &item.ExpireTime, &item.VotingLocked, &item.ChangeVote, &item.HideResults, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Poll{}, ErrNotFound
	}
	if err != nil {
		return Poll{}, fmt.Errorf("lock poll: %w", err)
	}
	return item, nil
}

// LockPollVoter serializes concurrent votes from the same voter so the
// delete/insert replace never interleaves. The two ids are hashed into a
// single bigint because the two-argument advisory lock form only takes
// int4 and would truncate them.
func (t *Tx) LockPollVoter(pollID, voterID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `SELECT pg_advisory_xact_lock($1)`, pollVoterLockKey(pollID, voterID))
	if err != nil {
		return fmt.Errorf("lock poll voter: %w", err)
	}
	return nil
}

func pollVoterLockKey(pollID, voterID int64) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(pollID))
	binary.BigEndian.PutUint64(buf[8:], uint64(voterID))
	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	return int64(h.Sum64())
}

func (t *Tx) VoterVotes(pollID, voterID int64) ([]PollVote, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT poll_id, voter_id, choice_id, voted_at
		FROM poll_votes
		WHERE poll_id=$1 AND voter_id=$2
		ORDER BY choice_id ASC
	`, pollID, voterID)
	if err != nil {
		return nil, fmt.Errorf("list voter votes: %w", err)
	}
	defer rows.Close()

	items := make([]PollVote, 0)
	for rows.Next() {
		var item PollVote
		if err := rows.Scan(&item.PollID, &item.VoterID, &item.ChoiceID, &item.VotedAt); err != nil {
			return nil, fmt.Errorf("scan voter vote: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voter votes: %w", err)
	}
	return items, nil
}

func (t *Tx) DeleteVoterVotes(pollID, voterID int64) error {
	_, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM poll_votes WHERE poll_id=$1 AND voter_id=$2
	`, pollID, voterID)
	if err != nil {
		return fmt.Errorf("delete voter votes: %w", err)
	}
	return nil
}

func (t *Tx) InsertPollVote(v PollVote) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO poll_votes (poll_id, voter_id, choice_id, voted_at)
		VALUES ($1, $2, $3, $4)
	`, v.PollID, v.VoterID, v.ChoiceID, v.VotedAt)
	if err != nil {
		return fmt.Errorf("insert poll vote: %w", err)
	}
	return nil
}

func (t *Tx) AdjustChoiceVotes(choiceID int64, delta int) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE poll_choices SET votes = GREATEST(votes + $2, 0) WHERE id=$1
	`, choiceID, delta)
	if err != nil {
		return fmt.Errorf("adjust choice votes: %w", err)
	}
	return nil
}

func (t *Tx) PollChoices(pollID int64) ([]PollChoice, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
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

func (t *Tx) GetIdempotency(key string) (*IdempotentResult, error) {
	var item IdempotentResult
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT key, topic_id, message_id FROM idempotency_keys WHERE key=$1
	`, key).Scan(&item.Key, &item.TopicID, &item.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return &item, nil
}

func (t *Tx) PutIdempotency(rec IdempotentResult) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO idempotency_keys (key, topic_id, message_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO NOTHING
	`, rec.Key, rec.TopicID, rec.MessageID)
	if err != nil {
		return fmt.Errorf("put idempotency key: %w", err)
	}
	return nil
}
