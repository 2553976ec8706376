package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"parlor/api/internal/groups"
	"parlor/api/internal/store"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		name         string
		memberGroups string
		callerGroups []int
		want         bool
	}{
		{"empty list is public", "", []int{groups.Guest}, true},
		{"zero is public", "0", []int{groups.Guest}, true},
		{"minus one anywhere is public", "3,-1", []int{groups.Guest}, true},
		{"guest denied on restricted board", "3", []int{groups.Guest}, false},
		{"matching group allowed", "3", []int{groups.Moderator}, true},
		{"any overlap suffices", "2,3", []int{groups.Member, groups.Moderator}, true},
		{"no overlap denied", "2,3", []int{groups.Member}, false},
		{"unparseable falls back to public", "vip,none", []int{groups.Guest}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.memberGroups, tt.callerGroups); got != tt.want {
				t.Errorf("Allowed(%q, %v) = %v, want %v", tt.memberGroups, tt.callerGroups, got, tt.want)
			}
		})
	}
}

func TestCanModerate(t *testing.T) {
	if CanModerate([]int{groups.Member}) {
		t.Errorf("plain member can moderate")
	}
	if CanModerate([]int{groups.Guest}) {
		t.Errorf("guest can moderate")
	}
	for _, g := range []int{groups.Admin, groups.GlobalModerator, groups.Moderator} {
		if !CanModerate([]int{groups.Member, g}) {
			t.Errorf("group %d cannot moderate", g)
		}
	}
}

type fakeBoards struct {
	getBoardFn func(context.Context, int64) (store.Board, error)
}

func (f *fakeBoards) GetBoard(ctx context.Context, boardID int64) (store.Board, error) {
	if f.getBoardFn != nil {
		return f.getBoardFn(ctx, boardID)
	}
	return store.Board{}, store.ErrNotFound
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvaluatorMissingBoardDenies(t *testing.T) {
	e := NewEvaluator(&fakeBoards{}, true, discardLogger())
	if e.CanAccess(context.Background(), 1, []int{groups.Admin}) {
		t.Fatalf("missing board allowed access")
	}
}

func TestEvaluatorAppliesBoardList(t *testing.T) {
	fb := &fakeBoards{
		getBoardFn: func(_ context.Context, boardID int64) (store.Board, error) {
			return store.Board{ID: boardID, MemberGroups: "3"}, nil
		},
	}
	e := NewEvaluator(fb, false, discardLogger())

	if e.CanAccess(context.Background(), 1, []int{groups.Guest}) {
		t.Fatalf("guest allowed on restricted board")
	}
	if !e.CanAccess(context.Background(), 1, []int{groups.Moderator}) {
		t.Fatalf("moderator denied on own board")
	}
}

func TestEvaluatorFailurePolicy(t *testing.T) {
	fb := &fakeBoards{
		getBoardFn: func(context.Context, int64) (store.Board, error) {
			return store.Board{}, errors.New("connection refused")
		},
	}

	open := NewEvaluator(fb, true, discardLogger())
	if !open.CanAccess(context.Background(), 1, []int{groups.Guest}) {
		t.Fatalf("fail-open evaluator denied during outage")
	}

	closed := NewEvaluator(fb, false, discardLogger())
	if closed.CanAccess(context.Background(), 1, []int{groups.Guest}) {
		t.Fatalf("fail-closed evaluator allowed during outage")
	}
}
