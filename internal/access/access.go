// Package access decides board visibility from a caller's group set.
package access

import (
	"context"
	"errors"
	"log/slog"

	"parlor/api/internal/groups"
	"parlor/api/internal/store"
)

// DefaultPublic is substituted when a board's member_groups field is empty,
// "0", or unparseable. -1 in an allow-list means public regardless of the
// other entries.
var DefaultPublic = []int{-1, 0, 1, 2, 3, 4}

// Allowed evaluates a board allow-list against a caller's groups.
func Allowed(memberGroups string, callerGroups []int) bool {
	allowed := ParseAllowed(memberGroups)
	if groups.Contains(allowed, -1) {
		return true
	}
	for _, g := range callerGroups {
		if groups.Contains(allowed, g) {
			return true
		}
	}
	return false
}

// ParseAllowed parses a board's member_groups field, substituting the
// public default for empty or "0".
func ParseAllowed(memberGroups string) []int {
	if memberGroups == "" || memberGroups == "0" {
		return DefaultPublic
	}
	parsed := groups.ParseList(memberGroups)
	if len(parsed) == 0 {
		return DefaultPublic
	}
	return parsed
}

// CanModerate reports whether the group set carries a moderator capability.
func CanModerate(callerGroups []int) bool {
	return groups.Contains(callerGroups, groups.Admin) ||
		groups.Contains(callerGroups, groups.GlobalModerator) ||
		groups.Contains(callerGroups, groups.Moderator)
}

type boardStore interface {
	GetBoard(ctx context.Context, boardID int64) (store.Board, error)
}

type Evaluator struct {
	boards   boardStore
	failOpen bool
	logger   *slog.Logger
}

func NewEvaluator(boards boardStore, failOpen bool, logger *slog.Logger) *Evaluator {
	return &Evaluator{boards: boards, failOpen: failOpen, logger: logger}
}

// CanAccess loads the board and evaluates its allow-list. A missing board
// denies. A storage error applies the configured fail-open policy; legacy
// trades strict security for availability here, so every fail-open allow is
// logged for operators.
func (e *Evaluator) CanAccess(ctx context.Context, boardID int64, callerGroups []int) bool {
	board, err := e.boards.GetBoard(ctx, boardID)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		if e.failOpen {
			e.logger.Warn("board access check failed open", "board_id", boardID, "error", err)
			return true
		}
		e.logger.Warn("board access check failed closed", "board_id", boardID, "error", err)
		return false
	}
	return Allowed(board.MemberGroups, callerGroups)
}
