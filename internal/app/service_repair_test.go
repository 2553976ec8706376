package app

import (
	"context"
	"testing"

	"parlor/api/internal/groups"
)

func TestRepairPointersFixesStaleReferences(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	topic := seedTopic(f, 1, 10, 1)

	// Simulate a half-applied delete: the last message is gone but the
	// pointers still reference it.
	stale := topic.LastMessageID
	delete(f.messages, stale)
	svc := newTestService(f)

	report, err := svc.RepairPointers(context.Background())
	if err != nil {
		t.Fatalf("RepairPointers() error = %v", err)
	}
	if report.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if len(report.FixedTopics) != 1 || report.FixedTopics[0] != topic.ID {
		t.Fatalf("fixed topics = %v, want [%d]", report.FixedTopics, topic.ID)
	}
	if len(report.FixedBoards) != 1 || report.FixedBoards[0] != 1 {
		t.Fatalf("fixed boards = %v, want [1]", report.FixedBoards)
	}

	if got := f.topics[topic.ID].LastMessageID; got != topic.FirstMessageID {
		t.Fatalf("topic pointer = %d, want %d", got, topic.FirstMessageID)
	}
	if got := f.boards[1].LastMessageID; got != topic.FirstMessageID {
		t.Fatalf("board pointer = %d, want %d", got, topic.FirstMessageID)
	}
}

func TestRepairPointersIdempotent(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	topic := seedTopic(f, 1, 10, 1)
	delete(f.messages, topic.LastMessageID)
	svc := newTestService(f)

	if _, err := svc.RepairPointers(context.Background()); err != nil {
		t.Fatalf("first RepairPointers() error = %v", err)
	}
	second, err := svc.RepairPointers(context.Background())
	if err != nil {
		t.Fatalf("second RepairPointers() error = %v", err)
	}
	if len(second.FixedTopics) != 0 || len(second.FixedBoards) != 0 {
		t.Fatalf("second run found work: %+v", second)
	}
}

func TestRepairPointersCleanForumUntouched(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	topic := seedTopic(f, 1, 10, 2)
	svc := newTestService(f)

	report, err := svc.RepairPointers(context.Background())
	if err != nil {
		t.Fatalf("RepairPointers() error = %v", err)
	}
	if len(report.FixedTopics) != 0 || len(report.FixedBoards) != 0 {
		t.Fatalf("clean forum reported fixes: %+v", report)
	}
	if got := f.topics[topic.ID].LastMessageID; got != topic.LastMessageID {
		t.Fatalf("pointer changed on clean forum: %d", got)
	}
}
