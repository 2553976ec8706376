package app

import (
	"context"
	"errors"
	"testing"

	"parlor/api/internal/groups"
)

// fakeListingCache remembers stored payloads and evictions; absent keys
// return an error the way a real cache miss does.
type fakeListingCache struct {
	data        map[int64][]byte
	invalidated []int64
	sets        int
}

func newFakeListingCache() *fakeListingCache {
	return &fakeListingCache{data: map[int64][]byte{}}
}

func (c *fakeListingCache) GetListing(_ context.Context, boardID int64) ([]byte, error) {
	payload, ok := c.data[boardID]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return payload, nil
}

func (c *fakeListingCache) SetListing(_ context.Context, boardID int64, payload []byte) error {
	c.sets++
	c.data[boardID] = payload
	return nil
}

func (c *fakeListingCache) InvalidateBoard(_ context.Context, boardID int64) error {
	c.invalidated = append(c.invalidated, boardID)
	delete(c.data, boardID)
	return nil
}

func TestBoardListingReadThrough(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	seedTopic(f, 1, 10, 2)
	seedTopic(f, 1, 10, 0)

	cache := newFakeListingCache()
	svc := newTestService(f)
	svc.cache = cache

	first, err := svc.BoardListing(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("first listing: %v", err)
	}
	if len(first.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(first.Topics))
	}
	if f.listingQueries != 1 {
		t.Fatalf("expected one store query, got %d", f.listingQueries)
	}
	if cache.sets != 1 {
		t.Fatalf("expected listing to be cached, sets=%d", cache.sets)
	}

	second, err := svc.BoardListing(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("second listing: %v", err)
	}
	if f.listingQueries != 1 {
		t.Fatalf("second listing should be served from cache, queries=%d", f.listingQueries)
	}
	if len(second.Topics) != 2 || second.BoardID != 1 {
		t.Fatalf("cached listing differs: %+v", second)
	}
}

func TestBoardListingRefreshedAfterMutation(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	topic := seedTopic(f, 1, 10, 0)

	cache := newFakeListingCache()
	svc := newTestService(f)
	svc.cache = cache

	if _, err := svc.BoardListing(context.Background(), 1, nil); err != nil {
		t.Fatalf("prime listing: %v", err)
	}

	if _, err := svc.CreatePost(context.Background(), CreatePostInput{
		TopicID:  topic.ID,
		AuthorID: 10,
		Body:     "a reply",
	}); err != nil {
		t.Fatalf("create post: %v", err)
	}
	if len(cache.invalidated) == 0 || cache.invalidated[0] != 1 {
		t.Fatalf("expected board 1 eviction after post, got %v", cache.invalidated)
	}

	refreshed, err := svc.BoardListing(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("refreshed listing: %v", err)
	}
	if f.listingQueries != 2 {
		t.Fatalf("expected a fresh store query after eviction, queries=%d", f.listingQueries)
	}
	if refreshed.Topics[0].ReplyCount != 1 {
		t.Fatalf("expected refreshed reply count 1, got %d", refreshed.Topics[0].ReplyCount)
	}
}

func TestBoardListingWorksWithoutCache(t *testing.T) {
	f := newMemForum()
	seedMember(f, 10, "alice", groups.Member)
	seedBoard(f, 1, "")
	seedTopic(f, 1, 10, 0)

	svc := newTestService(f)

	result, err := svc.BoardListing(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(result.Topics) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(result.Topics))
	}
}

func TestBoardListingDeniedOnRestrictedBoard(t *testing.T) {
	f := newMemForum()
	seedBoard(f, 1, "1,2,3")

	svc := newTestService(f)

	_, err := svc.BoardListing(context.Background(), 1, nil)
	requireCode(t, err, "ACCESS_DENIED")
}

func TestBoardListingUnknownBoard(t *testing.T) {
	f := newMemForum()
	svc := newTestService(f)

	_, err := svc.BoardListing(context.Background(), 99, nil)
	requireCode(t, err, "NOT_FOUND")
}
