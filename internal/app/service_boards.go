package app

import (
	"context"
	"encoding/json"
	"errors"

	"parlor/api/internal/access"
	"parlor/api/internal/store"
)

type TopicSummary struct {
	TopicID       int64  `json:"topicId"`
	Subject       string `json:"subject"`
	AuthorName    string `json:"authorName"`
	ReplyCount    int    `json:"replyCount"`
	ViewCount     int    `json:"viewCount"`
	Locked        bool   `json:"locked"`
	LastMessageID int64  `json:"lastMessageId"`
	PollID        int64  `json:"pollId,omitempty"`
}

type BoardListingResult struct {
	BoardID    int64          `json:"boardId"`
	Name       string         `json:"name"`
	TopicCount int            `json:"topicCount"`
	PostCount  int            `json:"postCount"`
	Topics     []TopicSummary `json:"topics"`
}

// BoardListing returns a board's topic index. The rendered listing is the
// same for every caller who can see the board, so it is cached as one
// payload per board; access is always evaluated fresh.
func (s *Service) BoardListing(ctx context.Context, boardID int64, callerID *int64) (BoardListingResult, error) {
	callerGroups := s.groups.Resolve(ctx, callerID)

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return BoardListingResult{}, notFound("board not found")
		}
		s.logger.Error("board listing lookup", "board_id", boardID, "error", err)
		return BoardListingResult{}, storageError()
	}
	if !access.Allowed(board.MemberGroups, callerGroups) {
		return BoardListingResult{}, accessDenied("board is restricted")
	}

	if cached, ok := s.cachedListing(ctx, boardID); ok {
		return cached, nil
	}

	topics, err := s.store.TopicsInBoard(ctx, boardID)
	if err != nil {
		s.logger.Error("board listing topics", "board_id", boardID, "error", err)
		return BoardListingResult{}, storageError()
	}

	result := BoardListingResult{
		BoardID:    board.ID,
		Name:       board.Name,
		TopicCount: board.TopicCount,
		PostCount:  board.PostCount,
		Topics:     make([]TopicSummary, 0, len(topics)),
	}
	for _, t := range topics {
		result.Topics = append(result.Topics, TopicSummary{
			TopicID:       t.ID,
			Subject:       t.Subject,
			AuthorName:    t.AuthorName,
			ReplyCount:    t.ReplyCount,
			ViewCount:     t.ViewCount,
			Locked:        t.Locked,
			LastMessageID: t.LastMessageID,
			PollID:        t.PollID,
		})
	}

	s.storeListing(ctx, boardID, result)
	return result, nil
}

// cachedListing treats every cache failure as a miss; a cold or broken
// cache only costs a database read.
func (s *Service) cachedListing(ctx context.Context, boardID int64) (BoardListingResult, bool) {
	if s.cache == nil {
		return BoardListingResult{}, false
	}
	payload, err := s.cache.GetListing(ctx, boardID)
	if err != nil {
		return BoardListingResult{}, false
	}
	var result BoardListingResult
	if err := json.Unmarshal(payload, &result); err != nil {
		s.logger.Warn("cached listing unreadable", "board_id", boardID, "error", err)
		return BoardListingResult{}, false
	}
	return result, true
}

func (s *Service) storeListing(ctx context.Context, boardID int64, result BoardListingResult) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.SetListing(ctx, boardID, payload); err != nil {
		s.logger.Warn("cache listing write failed", "board_id", boardID, "error", err)
	}
}
