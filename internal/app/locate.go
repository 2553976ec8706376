package app

import (
	"context"
	"errors"

	"parlor/api/internal/access"
	"parlor/api/internal/store"
)

type LocateResult struct {
	TopicID  int64 `json:"topicId"`
	Position int   `json:"position"`
	Page     int   `json:"page"`
}

// PageFor converts a 1-indexed position to a page number for a fixed page
// size.
func PageFor(position, pageSize int) int {
	if position < 1 || pageSize < 1 {
		return 1
	}
	return (position + pageSize - 1) / pageSize
}

// LocateMessage returns the position a message occupies in its topic's
// chronological order and the page it lands on. Used to deep-link
// moderation reports to the right page of a thread. callerID nil means
// guest; access is checked against the message's board.
func (s *Service) LocateMessage(ctx context.Context, messageID int64, callerID *int64) (LocateResult, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return LocateResult{}, notFound("message not found")
	}
	if err != nil {
		s.logger.Error("get message", "message_id", messageID, "error", err)
		return LocateResult{}, storageError()
	}

	callerGroups := s.groups.Resolve(ctx, callerID)
	board, err := s.store.GetBoard(ctx, msg.BoardID)
	if errors.Is(err, store.ErrNotFound) {
		return LocateResult{}, notFound("board not found")
	}
	if err != nil {
		s.logger.Error("get board", "board_id", msg.BoardID, "error", err)
		return LocateResult{}, storageError()
	}
	if !access.Allowed(board.MemberGroups, callerGroups) {
		return LocateResult{}, accessDenied("no read access to board")
	}

	position, err := s.store.MessagePosition(ctx, msg)
	if err != nil {
		s.logger.Error("message position", "message_id", messageID, "error", err)
		return LocateResult{}, storageError()
	}

	return LocateResult{
		TopicID:  msg.TopicID,
		Position: position,
		Page:     PageFor(position, s.cfg.PageSize),
	}, nil
}
