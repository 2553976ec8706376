package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"parlor/api/internal/access"
	"parlor/api/internal/config"
	"parlor/api/internal/store"
)

type CreateTopicInput struct {
	BoardID        int64     `json:"boardId"`
	AuthorID       int64     `json:"authorId"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	IdempotencyKey string    `json:"-"`
	Poll           *PollSpec `json:"poll,omitempty"`
}

type PollSpec struct {
	Question    string   `json:"question"`
	MaxVotes    int      `json:"maxVotes"`
	ExpireTime  int64    `json:"expireTime"`
	ChangeVote  bool     `json:"changeVote"`
	HideResults int      `json:"hideResults"`
	Choices     []string `json:"choices"`
}

type CreateTopicResult struct {
	TopicID   int64 `json:"topicId"`
	MessageID int64 `json:"messageId"`
}

type CreatePostInput struct {
	TopicID        int64  `json:"topicId"`
	AuthorID       int64  `json:"authorId"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"-"`
}

type CreatePostResult struct {
	MessageID int64 `json:"messageId"`
}

type EditPostInput struct {
	MessageID int64  `json:"-"`
	EditorID  int64  `json:"editorId"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type DeletePostResult struct {
	TopicDeleted bool `json:"topicDeleted"`
}

type MoveTopicResult struct {
	MessageCount int `json:"messageCount"`
}

type LockTopicResult struct {
	Locked bool `json:"locked"`
}

type ReportResult struct {
	ReportID int64 `json:"reportId"`
}

// forumTx is one atomic mutation: every counter and pointer change within
// an operation commits or none do.
type forumTx interface {
	Commit() error
	Rollback() error

	BoardForUpdate(boardID int64) (store.Board, error)
	TopicForUpdate(topicID int64) (store.Topic, error)
	GetMessage(messageID int64) (store.Message, error)

	NextMessageID() (int64, error)
	NextTopicID() (int64, error)
	NextPollID() (int64, error)
	NextChoiceID() (int64, error)

	InsertMessage(m store.Message) error
	InsertTopic(t store.Topic) error
	InsertPoll(p store.Poll) error
	InsertPollChoice(c store.PollChoice) error

	UpdateBoardCounters(boardID int64, topicCount, postCount int, lastMessageID int64) error
	UpdateTopicCounters(topicID int64, replyCount int, lastMessageID int64) error
	SetTopicLocked(topicID int64, locked bool) error
	SetMessageEdited(messageID int64, subject, body string, modifiedAt time.Time, modifiedName string) error

	DeleteMessage(messageID int64) error
	DeleteTopicMessages(topicID int64) (int, error)
	DeleteTopic(topicID int64) error

	LatestMessageInTopic(topicID int64) (int64, error)
	LatestMessageInBoard(boardID int64) (int64, error)

	ReassignTopic(topicID, boardID int64) error
	ReassignTopicMessages(topicID, boardID int64) (int, error)
	AdjustMemberPostCount(memberID int64, delta int) error

	HasOpenReport(messageID, reporterID int64) (bool, error)
	InsertReport(r store.Report) (int64, error)

	PollForUpdate(pollID int64) (store.Poll, error)
	LockPollVoter(pollID, voterID int64) error
	VoterVotes(pollID, voterID int64) ([]store.PollVote, error)
	DeleteVoterVotes(pollID, voterID int64) error
	InsertPollVote(v store.PollVote) error
	AdjustChoiceVotes(choiceID int64, delta int) error
	PollChoices(pollID int64) ([]store.PollChoice, error)

	GetIdempotency(key string) (*store.IdempotentResult, error)
	PutIdempotency(rec store.IdempotentResult) error
}

type dataStore interface {
	GetMember(ctx context.Context, memberID int64) (store.Member, error)
	GetBoard(ctx context.Context, boardID int64) (store.Board, error)
	GetMessage(ctx context.Context, messageID int64) (store.Message, error)
	GetPoll(ctx context.Context, pollID int64) (store.Poll, error)
	PollChoices(ctx context.Context, pollID int64) ([]store.PollChoice, error)
	HasVoted(ctx context.Context, pollID, voterID int64) (bool, error)
	PollVoters(ctx context.Context, pollID int64) ([]store.PollVoter, error)
	MessagePosition(ctx context.Context, m store.Message) (int, error)
	TopicsInBoard(ctx context.Context, boardID int64) ([]store.TopicListing, error)
	Begin(ctx context.Context) (forumTx, error)
	BrokenTopicPointers(ctx context.Context) ([]int64, error)
	BrokenBoardPointers(ctx context.Context) ([]int64, error)
	FixTopicPointer(ctx context.Context, topicID int64) error
	FixBoardPointer(ctx context.Context, boardID int64) error
	Ping(ctx context.Context) error
}

type groupResolver interface {
	Resolve(ctx context.Context, userID *int64) []int
}

// ListingCache stores rendered board listings. Reads treat any error as a
// miss; mutations evict the affected boards after commit.
type ListingCache interface {
	GetListing(ctx context.Context, boardID int64) ([]byte, error)
	SetListing(ctx context.Context, boardID int64, payload []byte) error
	InvalidateBoard(ctx context.Context, boardID int64) error
}

// Notifier delivers best-effort moderation and poll notifications.
type Notifier interface {
	MessageReported(ctx context.Context, messageID, reportID int64, subject, comment string) error
	TopicModerated(ctx context.Context, topicID int64, action, boardName string) error
	PollVoteCast(ctx context.Context, pollID, voterID int64, question string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	groups    groupResolver
	evaluator *access.Evaluator
	cache     ListingCache
	notify    Notifier
	logger    *slog.Logger
}

// pgStore narrows *store.PostgresStore's concrete Begin to the forumTx
// interface.
type pgStore struct {
	*store.PostgresStore
}

func (p pgStore) Begin(ctx context.Context) (forumTx, error) {
	return p.PostgresStore.Begin(ctx)
}

func New(cfg config.Config, dataStore *store.PostgresStore, resolver groupResolver, evaluator *access.Evaluator, cache ListingCache, notify Notifier, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		store:     pgStore{dataStore},
		groups:    resolver,
		evaluator: evaluator,
		cache:     cache,
		notify:    notify,
		logger:    logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ResolveGroups is the public group-resolution surface; nil means guest.
func (s *Service) ResolveGroups(ctx context.Context, userID *int64) []int {
	return s.groups.Resolve(ctx, userID)
}

// CanAccessBoard evaluates board access for an already-resolved group set.
func (s *Service) CanAccessBoard(ctx context.Context, boardID int64, callerGroups []int) bool {
	return s.evaluator.CanAccess(ctx, boardID, callerGroups)
}

func (s *Service) memberGroups(ctx context.Context, memberID int64) []int {
	return s.groups.Resolve(ctx, &memberID)
}

func (s *Service) authorName(ctx context.Context, memberID int64) string {
	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return fmt.Sprintf("member-%d", memberID)
	}
	return member.Name
}

func (s *Service) rollback(tx forumTx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("rollback failed", "error", err)
	}
}

// invalidate is fire-and-forget: a stale listing cache corrects itself on
// the next miss, so cache errors never fail a committed mutation.
func (s *Service) invalidate(ctx context.Context, boardIDs ...int64) {
	if s.cache == nil {
		return
	}
	for _, id := range boardIDs {
		if err := s.cache.InvalidateBoard(ctx, id); err != nil {
			s.logger.Warn("cache invalidation failed", "board_id", id, "error", err)
		}
	}
}

// CreateTopic creates the first message and its topic in one transaction,
// updating the board's topic/post counters and last-message pointer. An
// optional poll is created first so the topic can store its id.
func (s *Service) CreateTopic(ctx context.Context, input CreateTopicInput) (CreateTopicResult, error) {
	if input.Subject == "" || input.Body == "" {
		return CreateTopicResult{}, invalidState("subject and body are required")
	}
	if input.Poll != nil {
		if input.Poll.Question == "" || len(input.Poll.Choices) < 2 {
			return CreateTopicResult{}, invalidState("poll needs a question and at least two choices")
		}
		if input.Poll.MaxVotes < 1 {
			input.Poll.MaxVotes = 1
		}
	}

	callerGroups := s.memberGroups(ctx, input.AuthorID)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("begin create topic", "error", err)
		return CreateTopicResult{}, storageError()
	}
	defer s.rollback(tx)

	if input.IdempotencyKey != "" {
		prior, err := tx.GetIdempotency(input.IdempotencyKey)
		if err != nil {
			s.logger.Error("idempotency lookup", "error", err)
			return CreateTopicResult{}, storageError()
		}
		if prior != nil {
			return CreateTopicResult{TopicID: prior.TopicID, MessageID: prior.MessageID}, nil
		}
	}

	board, err := tx.BoardForUpdate(input.BoardID)
	if errors.Is(err, store.ErrNotFound) {
		return CreateTopicResult{}, notFound("board not found")
	}
	if err != nil {
		s.logger.Error("lock board", "board_id", input.BoardID, "error", err)
		return CreateTopicResult{}, storageError()
	}
	if !access.Allowed(board.MemberGroups, callerGroups) {
		return CreateTopicResult{}, accessDenied("no write access to board")
	}

	var pollID int64
	if input.Poll != nil {
		pollID, err = s.createPoll(tx, *input.Poll)
		if err != nil {
			s.logger.Error("create poll", "error", err)
			return CreateTopicResult{}, storageError()
		}
	}

	messageID, err := tx.NextMessageID()
	if err != nil {
		s.logger.Error("allocate message id", "error", err)
		return CreateTopicResult{}, storageError()
	}
	topicID, err := tx.NextTopicID()
	if err != nil {
		s.logger.Error("allocate topic id", "error", err)
		return CreateTopicResult{}, storageError()
	}

	now := time.Now().UTC()
	if err := tx.InsertMessage(store.Message{
		ID:         messageID,
		TopicID:    topicID,
		BoardID:    board.ID,
		AuthorID:   input.AuthorID,
		AuthorName: s.authorName(ctx, input.AuthorID),
		Subject:    input.Subject,
		Body:       input.Body,
		PostTime:   now,
		Approved:   true,
	}); err != nil {
		s.logger.Error("insert first message", "error", err)
		return CreateTopicResult{}, storageError()
	}

	if err := tx.InsertTopic(store.Topic{
		ID:             topicID,
		BoardID:        board.ID,
		FirstMessageID: messageID,
		LastMessageID:  messageID,
		PollID:         pollID,
	}); err != nil {
		s.logger.Error("insert topic", "error", err)
		return CreateTopicResult{}, storageError()
	}

	if err := tx.UpdateBoardCounters(board.ID, board.TopicCount+1, board.PostCount+1, messageID); err != nil {
		s.logger.Error("update board counters", "error", err)
		return CreateTopicResult{}, storageError()
	}
	if err := tx.AdjustMemberPostCount(input.AuthorID, 1); err != nil {
		s.logger.Error("adjust author post count", "error", err)
		return CreateTopicResult{}, storageError()
	}

	if input.IdempotencyKey != "" {
		if err := tx.PutIdempotency(store.IdempotentResult{Key: input.IdempotencyKey, TopicID: topicID, MessageID: messageID}); err != nil {
			s.logger.Error("store idempotency key", "error", err)
			return CreateTopicResult{}, storageError()
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit create topic", "error", err)
		return CreateTopicResult{}, storageError()
	}

	s.invalidate(ctx, board.ID)
	return CreateTopicResult{TopicID: topicID, MessageID: messageID}, nil
}

func (s *Service) createPoll(tx forumTx, spec PollSpec) (int64, error) {
	pollID, err := tx.NextPollID()
	if err != nil {
		return 0, err
	}
	if err := tx.InsertPoll(store.Poll{
		ID:          pollID,
		Question:    spec.Question,
		MaxVotes:    spec.MaxVotes,
		ExpireTime:  spec.ExpireTime,
		ChangeVote:  spec.ChangeVote,
		HideResults: spec.HideResults,
	}); err != nil {
		return 0, err
	}
	choiceID, err := tx.NextChoiceID()
	if err != nil {
		return 0, err
	}
	for i, label := range spec.Choices {
		if err := tx.InsertPollChoice(store.PollChoice{
			ID:        choiceID + int64(i),
			PollID:    pollID,
			Label:     label,
			SortOrder: i,
		}); err != nil {
			return 0, err
		}
	}
	return pollID, nil
}

// CreatePost appends a reply to a topic, bumping the topic's reply count
// and the last-message pointers on both topic and board.
func (s *Service) CreatePost(ctx context.Context, input CreatePostInput) (CreatePostResult, error) {
	if input.Body == "" {
		return CreatePostResult{}, invalidState("body is required")
	}

	callerGroups := s.memberGroups(ctx, input.AuthorID)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("begin create post", "error", err)
		return CreatePostResult{}, storageError()
	}
	defer s.rollback(tx)

	if input.IdempotencyKey != "" {
		prior, err := tx.GetIdempotency(input.IdempotencyKey)
		if err != nil {
			s.logger.Error("idempotency lookup", "error", err)
			return CreatePostResult{}, storageError()
		}
		if prior != nil {
			return CreatePostResult{MessageID: prior.MessageID}, nil
		}
	}

	topic, err := tx.TopicForUpdate(input.TopicID)
	if errors.Is(err, store.ErrNotFound) {
		return CreatePostResult{}, notFound("topic not found")
	}
	if err != nil {
		s.logger.Error("lock topic", "topic_id", input.TopicID, "error", err)
		return CreatePostResult{}, storageError()
	}
	if topic.Locked {
		return CreatePostResult{}, invalidState("topic is locked")
	}

	board, err := tx.BoardForUpdate(topic.BoardID)
	if errors.Is(err, store.ErrNotFound) {
		return CreatePostResult{}, notFound("board not found")
	}
	if err != nil {
		s.logger.Error("lock board", "board_id", topic.BoardID, "error", err)
		return CreatePostResult{}, storageError()
	}
	if !access.Allowed(board.MemberGroups, callerGroups) {
		return CreatePostResult{}, accessDenied("no write access to board")
	}

	subject := input.Subject
	if subject == "" {
		first, err := tx.GetMessage(topic.FirstMessageID)
		if err != nil {
			s.logger.Error("read first message", "topic_id", topic.ID, "error", err)
			return CreatePostResult{}, storageError()
		}
		subject = "Re: " + first.Subject
	}

	messageID, err := tx.NextMessageID()
	if err != nil {
		s.logger.Error("allocate message id", "error", err)
		return CreatePostResult{}, storageError()
	}

	now := time.Now().UTC()
	if err := tx.InsertMessage(store.Message{
		ID:         messageID,
		TopicID:    topic.ID,
		BoardID:    board.ID,
		AuthorID:   input.AuthorID,
		AuthorName: s.authorName(ctx, input.AuthorID),
		Subject:    subject,
		Body:       input.Body,
		PostTime:   now,
		Approved:   true,
	}); err != nil {
		s.logger.Error("insert reply", "error", err)
		return CreatePostResult{}, storageError()
	}

	if err := tx.UpdateTopicCounters(topic.ID, topic.ReplyCount+1, messageID); err != nil {
		s.logger.Error("update topic counters", "error", err)
		return CreatePostResult{}, storageError()
	}
	if err := tx.UpdateBoardCounters(board.ID, board.TopicCount, board.PostCount+1, messageID); err != nil {
		s.logger.Error("update board counters", "error", err)
		return CreatePostResult{}, storageError()
	}
	if err := tx.AdjustMemberPostCount(input.AuthorID, 1); err != nil {
		s.logger.Error("adjust author post count", "error", err)
		return CreatePostResult{}, storageError()
	}

	if input.IdempotencyKey != "" {
		if err := tx.PutIdempotency(store.IdempotentResult{Key: input.IdempotencyKey, TopicID: topic.ID, MessageID: messageID}); err != nil {
			s.logger.Error("store idempotency key", "error", err)
			return CreatePostResult{}, storageError()
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit create post", "error", err)
		return CreatePostResult{}, storageError()
	}

	s.invalidate(ctx, board.ID)
	return CreatePostResult{MessageID: messageID}, nil
}

// EditPost updates a message body in place. Counters are untouched; only
// the modified-by audit fields change.
func (s *Service) EditPost(ctx context.Context, input EditPostInput) error {
	callerGroups := s.memberGroups(ctx, input.EditorID)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("begin edit post", "error", err)
		return storageError()
	}
	defer s.rollback(tx)

	msg, err := tx.GetMessage(input.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("message not found")
	}
	if err != nil {
		s.logger.Error("read message", "message_id", input.MessageID, "error", err)
		return storageError()
	}

	topic, err := tx.TopicForUpdate(msg.TopicID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("topic not found")
	}
	if err != nil {
		s.logger.Error("lock topic", "topic_id", msg.TopicID, "error", err)
		return storageError()
	}
	if topic.Locked {
		return invalidState("topic is locked")
	}

	if msg.AuthorID != input.EditorID && !access.CanModerate(callerGroups) {
		return permissionDenied("only the author or a moderator may edit")
	}

	subject := input.Subject
	if subject == "" {
		subject = msg.Subject
	}
	body := input.Body
	if body == "" {
		body = msg.Body
	}

	if err := tx.SetMessageEdited(msg.ID, subject, body, time.Now().UTC(), s.authorName(ctx, input.EditorID)); err != nil {
		s.logger.Error("update message", "message_id", msg.ID, "error", err)
		return storageError()
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit edit post", "error", err)
		return storageError()
	}
	return nil
}

// DeletePost removes a message. Deleting a topic's first message deletes
// the whole topic; otherwise the single message goes and the topic's and
// board's counters and pointers are recomputed.
func (s *Service) DeletePost(ctx context.Context, messageID, requesterID int64) (DeletePostResult, error) {
	callerGroups := s.memberGroups(ctx, requesterID)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("begin delete post", "error", err)
		return DeletePostResult{}, storageError()
	}
	defer s.rollback(tx)

	msg, err := tx.GetMessage(messageID)
	if errors.Is(err, store.ErrNotFound) {
		return DeletePostResult{}, notFound("message not found")
	}
	if err != nil {
		s.logger.Error("read message", "message_id", messageID, "error", err)
		return DeletePostResult{}, storageError()
	}

	if msg.AuthorID != requesterID && !access.CanModerate(callerGroups) {
		return DeletePostResult{}, permissionDenied("only the author or a moderator may delete")
	}

	topic, err := tx.TopicForUpdate(msg.TopicID)
	if errors.Is(err, store.ErrNotFound) {
		return DeletePostResult{}, notFound("topic not found")
	}
	if err != nil {
		s.logger.Error("lock topic", "topic_id", msg.TopicID, "error", err)
		return DeletePostResult{}, storageError()
	}

	board, err := tx.BoardForUpdate(topic.BoardID)
	if errors.Is(err, store.ErrNotFound) {
		return DeletePostResult{}, notFound("board not found")
	}
	if err != nil {
		s.logger.Error("lock board", "board_id", topic.BoardID, "error", err)
		return DeletePostResult{}, storageError()
	}

	if msg.ID == topic.FirstMessageID {
		if err := s.deleteWholeTopic(tx, topic, board, msg); err != nil {
			return DeletePostResult{}, err
		}
		if err := tx.Commit(); err != nil {
			s.logger.Error("commit delete topic", "error", err)
			return DeletePostResult{}, storageError()
		}
		s.invalidate(ctx, board.ID)
		return DeletePostResult{TopicDeleted: true}, nil
	}

	if err := tx.DeleteMessage(msg.ID); err != nil {
		s.logger.Error("delete message", "message_id", msg.ID, "error", err)
		return DeletePostResult{}, storageError()
	}

	topicLast := topic.LastMessageID
	if topicLast == msg.ID {
		topicLast, err = tx.LatestMessageInTopic(topic.ID)
		if err != nil {
			s.logger.Error("recompute topic pointer", "topic_id", topic.ID, "error", err)
			return DeletePostResult{}, storageError()
		}
	}
	if err := tx.UpdateTopicCounters(topic.ID, topic.ReplyCount-1, topicLast); err != nil {
		s.logger.Error("update topic counters", "error", err)
		return DeletePostResult{}, storageError()
	}

	boardLast := board.LastMessageID
	if boardLast == msg.ID {
		boardLast, err = tx.LatestMessageInBoard(board.ID)
		if err != nil {
			s.logger.Error("recompute board pointer", "board_id", board.ID, "error", err)
			return DeletePostResult{}, storageError()
		}
	}
	if err := tx.UpdateBoardCounters(board.ID, board.TopicCount, board.PostCount-1, boardLast); err != nil {
		s.logger.Error("update board counters", "error", err)
		return DeletePostResult{}, storageError()
	}

	if err := tx.AdjustMemberPostCount(msg.AuthorID, -1); err != nil {
		s.logger.Error("adjust author post count", "error", err)
		return DeletePostResult{}, storageError()
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit delete post", "error", err)
		return DeletePostResult{}, storageError()
	}

	s.invalidate(ctx, board.ID)
	return DeletePostResult{}, nil
}

// deleteWholeTopic removes every message of the topic plus the topic row.
// Only the first message's author loses a post-count point; reply authors
// keep theirs. Legacy behaved this way and other site features display the
// stored counts, so parity wins over exactness.
func (s *Service) deleteWholeTopic(tx forumTx, topic store.Topic, board store.Board, first store.Message) error {
	removed, err := tx.DeleteTopicMessages(topic.ID)
	if err != nil {
		s.logger.Error("delete topic messages", "topic_id", topic.ID, "error", err)
		return storageError()
	}
	if err := tx.DeleteTopic(topic.ID); err != nil {
		s.logger.Error("delete topic", "topic_id", topic.ID, "error", err)
		return storageError()
	}

	boardLast := board.LastMessageID
	if boardLast == topic.LastMessageID || boardLast == first.ID {
		boardLast, err = tx.LatestMessageInBoard(board.ID)
		if err != nil {
			s.logger.Error("recompute board pointer", "board_id", board.ID, "error", err)
			return storageError()
		}
	}
	if err := tx.UpdateBoardCounters(board.ID, board.TopicCount-1, board.PostCount-removed, boardLast); err != nil {
		s.logger.Error("update board counters", "error", err)
		return storageError()
	}
	if err := tx.AdjustMemberPostCount(first.AuthorID, -1); err != nil {
		s.logger.Error("adjust author post count", "error", err)
		return storageError()
	}
	return nil
}

// MoveTopic reassigns a topic and all its messages to another board and
// recomputes both boards' counters and pointers from what is actually
// present after the move.
func (s *Service) MoveTopic(ctx context.Context, topicID, targetBoardID, requesterID int64) (MoveTopicResult, error) {
	callerGroups := s.memberGroups(ctx, requesterID)
	if !access.CanModerate(callerGroups) {
		return MoveTopicResult{}, permissionDenied("moving topics requires a moderator")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("begin move topic", "error", err)
		return MoveTopicResult{}, storageError()
	}
	defer s.rollback(tx)

	topic, err := tx.TopicForUpdate(topicID)
	if errors.Is(err, store.ErrNotFound) {
		return MoveTopicResult{}, notFound("topic not found")
	}
	if err != nil {
		s.logger.Error("lock topic", "topic_id", topicID, "error", err)
		return MoveTopicResult{}, storageError()
	}
	if topic.BoardID == targetBoardID {
		return MoveTopicResult{}, invalidState("topic is already in the target board")
	}

	// Lock boards in id order so two opposite moves cannot deadlock.
	firstID, secondID := topic.BoardID, targetBoardID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}
	locked := make(map[int64]store.Board, 2)
	for _, id := range []int64{firstID, secondID} {
		b, err := tx.BoardForUpdate(id)
		if errors.Is(err, store.ErrNotFound) {
			return MoveTopicResult{}, notFound("board not found")
		}
		if err != nil {
			s.logger.Error("lock board", "board_id", id, "error", err)
			return MoveTopicResult{}, storageError()
		}
		locked[id] = b
	}
	source, target := locked[topic.BoardID], locked[targetBoardID]

	if !access.Allowed(source.MemberGroups, callerGroups) || !access.Allowed(target.MemberGroups, callerGroups) {
		return MoveTopicResult{}, accessDenied("no access to source or target board")
	}

	moved, err := tx.ReassignTopicMessages(topic.ID, target.ID)
	if err != nil {
		s.logger.Error("reassign messages", "topic_id", topic.ID, "error", err)
		return MoveTopicResult{}, storageError()
	}
	if err := tx.ReassignTopic(topic.ID, target.ID); err != nil {
		s.logger.Error("reassign topic", "topic_id", topic.ID, "error", err)
		return MoveTopicResult{}, storageError()
	}

	sourceLast, err := tx.LatestMessageInBoard(source.ID)
	if err != nil {
		s.logger.Error("recompute source pointer", "board_id", source.ID, "error", err)
		return MoveTopicResult{}, storageError()
	}
	targetLast, err := tx.LatestMessageInBoard(target.ID)
	if err != nil {
		s.logger.Error("recompute target pointer", "board_id", target.ID, "error", err)
		return MoveTopicResult{}, storageError()
	}

	if err := tx.UpdateBoardCounters(source.ID, source.TopicCount-1, source.PostCount-moved, sourceLast); err != nil {
		s.logger.Error("update source counters", "error", err)
		return MoveTopicResult{}, storageError()
	}
	if err := tx.UpdateBoardCounters(target.ID, target.TopicCount+1, target.PostCount+moved, targetLast); err != nil {
		s.logger.Error("update target counters", "error", err)
		return MoveTopicResult{}, storageError()
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit move topic", "error", err)
		return MoveTopicResult{}, storageError()
	}

	s.invalidate(ctx, source.ID, target.ID)
	s.notifyModeration(ctx, topic.ID, "moved", target.Name)
	return MoveTopicResult{MessageCount: moved}, nil
}

// LockTopic toggles the locked flag; no counter effect.
func (s *Service) LockTopic(ctx context.Context, topicID int64, lock bool, requesterID int64) (LockTopicResult, error) {
	callerGroups := s.memberGroups(ctx, requesterID)
	if !access.CanModerate(callerGroups) {
		return LockTopicResult{}, permissionDenied("locking topics requires a moderator")
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("begin lock topic", "error", err)
		return LockTopicResult{}, storageError()
	}
	defer s.rollback(tx)

	topic, err := tx.TopicForUpdate(topicID)
	if errors.Is(err, store.ErrNotFound) {
		return LockTopicResult{}, notFound("topic not found")
	}
	if err != nil {
		s.logger.Error("lock topic row", "topic_id", topicID, "error", err)
		return LockTopicResult{}, storageError()
	}

	board, err := tx.BoardForUpdate(topic.BoardID)
	if errors.Is(err, store.ErrNotFound) {
		return LockTopicResult{}, notFound("board not found")
	}
	if err != nil {
		s.logger.Error("lock board", "board_id", topic.BoardID, "error", err)
		return LockTopicResult{}, storageError()
	}
	if !access.Allowed(board.MemberGroups, callerGroups) {
		return LockTopicResult{}, accessDenied("no access to board")
	}

	if err := tx.SetTopicLocked(topic.ID, lock); err != nil {
		s.logger.Error("set topic locked", "topic_id", topic.ID, "error", err)
		return LockTopicResult{}, storageError()
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit lock topic", "error", err)
		return LockTopicResult{}, storageError()
	}

	s.invalidate(ctx, board.ID)
	action := "unlocked"
	if lock {
		action = "locked"
	}
	s.notifyModeration(ctx, topic.ID, action, board.Name)
	return LockTopicResult{Locked: lock}, nil
}

// ReportMessage flags a message for moderators. A second open report from
// the same reporter on the same message is rejected.
func (s *Service) ReportMessage(ctx context.Context, messageID, reporterID int64, comment string) (ReportResult, error) {
	callerGroups := s.memberGroups(ctx, reporterID)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("begin report message", "error", err)
		return ReportResult{}, storageError()
	}
	defer s.rollback(tx)

	msg, err := tx.GetMessage(messageID)
	if errors.Is(err, store.ErrNotFound) {
		return ReportResult{}, notFound("message not found")
	}
	if err != nil {
		s.logger.Error("read message", "message_id", messageID, "error", err)
		return ReportResult{}, storageError()
	}

	board, err := tx.BoardForUpdate(msg.BoardID)
	if errors.Is(err, store.ErrNotFound) {
		return ReportResult{}, notFound("board not found")
	}
	if err != nil {
		s.logger.Error("lock board", "board_id", msg.BoardID, "error", err)
		return ReportResult{}, storageError()
	}
	if !access.Allowed(board.MemberGroups, callerGroups) {
		return ReportResult{}, accessDenied("no read access to board")
	}

	duplicate, err := tx.HasOpenReport(msg.ID, reporterID)
	if err != nil {
		s.logger.Error("check open report", "message_id", msg.ID, "error", err)
		return ReportResult{}, storageError()
	}
	if duplicate {
		return ReportResult{}, invalidState("an open report from this reporter already exists")
	}

	reportID, err := tx.InsertReport(store.Report{
		MessageID:  msg.ID,
		TopicID:    msg.TopicID,
		BoardID:    msg.BoardID,
		ReporterID: reporterID,
		Comment:    comment,
	})
	if err != nil {
		s.logger.Error("insert report", "message_id", msg.ID, "error", err)
		return ReportResult{}, storageError()
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit report message", "error", err)
		return ReportResult{}, storageError()
	}

	if s.notify != nil {
		if err := s.notify.MessageReported(ctx, msg.ID, reportID, msg.Subject, comment); err != nil {
			s.logger.Warn("report notification failed", "report_id", reportID, "error", err)
		}
	}
	return ReportResult{ReportID: reportID}, nil
}

func (s *Service) notifyModeration(ctx context.Context, topicID int64, action, boardName string) {
	if s.notify == nil {
		return
	}
	if err := s.notify.TopicModerated(ctx, topicID, action, boardName); err != nil {
		s.logger.Warn("moderation notification failed", "topic_id", topicID, "action", action, "error", err)
	}
}
