package store

import "time"

type Member struct {
	ID           int64
	Name         string
	Email        string
	PrimaryGroup int
	PostGroup    int
	ExtraGroups  string // comma-separated group ids, legacy format
	PostCount    int
	CreatedAt    time.Time
}

type Board struct {
	ID            int64
	ParentID      int64 // 0 = top-level
	Name          string
	Description   string
	TopicCount    int
	PostCount     int
	LastMessageID int64 // 0 = empty board
	// Comma-separated group ids. Empty or "0" means public; -1 anywhere
	// in the list means public regardless of other entries.
	MemberGroups string
}

type Topic struct {
	ID             int64
	BoardID        int64
	FirstMessageID int64
	LastMessageID  int64
	ReplyCount     int
	ViewCount      int
	Locked         bool
	PollID         int64 // 0 = none
}

// TopicListing is one row of a board's topic index, joined with the first
// message for display fields.
type TopicListing struct {
	ID            int64
	Subject       string
	AuthorName    string
	ReplyCount    int
	ViewCount     int
	Locked        bool
	LastMessageID int64
	PollID        int64
}

type Message struct {
	ID           int64
	TopicID      int64
	BoardID      int64 // denormalized, kept in sync on move
	AuthorID     int64
	AuthorName   string
	Subject      string
	Body         string
	PostTime     time.Time
	Approved     bool
	ModifiedTime *time.Time
	ModifiedName string
}

type Poll struct {
	ID           int64
	Question     string
	MaxVotes     int
	ExpireTime   int64 // unix seconds, 0 = never
	VotingLocked bool
	ChangeVote   bool
	HideResults  int // 0 always, 1 after voting, 2 after expiry
	CreatedAt    time.Time
}

type PollChoice struct {
	ID        int64
	PollID    int64
	Label     string
	SortOrder int
	Votes     int // derived cache; poll_votes is the source of truth
}

type PollVote struct {
	PollID   int64
	VoterID  int64
	ChoiceID int64
	VotedAt  time.Time
}

type PollVoter struct {
	ID   int64
	Name string
}

type Report struct {
	ID         int64
	MessageID  int64
	TopicID    int64
	BoardID    int64
	ReporterID int64
	Comment    string
	Closed     bool
	ClosedBy   int64
	ClosedAt   *time.Time
	CreatedAt  time.Time
}

// IdempotentResult replays a previously committed create.
type IdempotentResult struct {
	Key       string
	TopicID   int64
	MessageID int64
}
