package app

import (
	"context"
	"testing"

	"parlor/api/internal/groups"
)

func TestPageFor(t *testing.T) {
	cases := []struct {
		position, pageSize, want int
	}{
		{1, 15, 1},
		{15, 15, 1},
		{16, 15, 2},
		{30, 15, 2},
		{31, 15, 3},
		{0, 15, 1},
		{5, 0, 1},
	}
	for _, tc := range cases {
		if got := PageFor(tc.position, tc.pageSize); got != tc.want {
			t.Fatalf("PageFor(%d, %d) = %d, want %d", tc.position, tc.pageSize, got, tc.want)
		}
	}
}

func TestLocateMessageReturnsPositionAndPage(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	topic := seedTopic(f, 1, 10, 20)
	svc := newTestService(f)

	// Message 16 in chronological order lands on page 2 with 15 per page.
	target := topic.FirstMessageID + 15
	result, err := svc.LocateMessage(context.Background(), target, nil)
	if err != nil {
		t.Fatalf("LocateMessage() error = %v", err)
	}
	if result.TopicID != topic.ID {
		t.Fatalf("topic = %d, want %d", result.TopicID, topic.ID)
	}
	if result.Position != 16 {
		t.Fatalf("position = %d, want 16", result.Position)
	}
	if result.Page != 2 {
		t.Fatalf("page = %d, want 2", result.Page)
	}
}

func TestLocateMessageDeniedOnRestrictedBoard(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "3")
	topic := seedTopic(f, 1, 10, 0)
	svc := newTestService(f)

	_, err := svc.LocateMessage(context.Background(), topic.FirstMessageID, nil)
	requireCode(t, err, "ACCESS_DENIED")
}

func TestLocateMessageUnknownID(t *testing.T) {
	f := newMemForum()
	svc := newTestService(f)

	_, err := svc.LocateMessage(context.Background(), 999, nil)
	requireCode(t, err, "NOT_FOUND")
}
