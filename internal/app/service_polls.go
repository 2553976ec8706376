package app

import (
	"context"
	"errors"
	"math"
	"time"

	"parlor/api/internal/store"
)

type PollChoiceView struct {
	ChoiceID int64  `json:"choiceId"`
	Label    string `json:"label"`
	Votes    int    `json:"votes"`
	Percent  int    `json:"percent"`
}

type PollView struct {
	PollID         int64            `json:"pollId"`
	Question       string           `json:"question"`
	MaxVotes       int              `json:"maxVotes"`
	ExpireTime     int64            `json:"expireTime"`
	Expired        bool             `json:"expired"`
	VotingLocked   bool             `json:"votingLocked"`
	ChangeVote     bool             `json:"changeVote"`
	HasVoted       bool             `json:"hasVoted"`
	ResultsVisible bool             `json:"resultsVisible"`
	TotalVotes     int              `json:"totalVotes"`
	Choices        []PollChoiceView `json:"choices"`
}

type PollVoterView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func pollExpired(p store.Poll, now time.Time) bool {
	return p.ExpireTime != 0 && now.Unix() >= p.ExpireTime
}

// resultsVisible applies the hideResults mode: 0 always, 1 after the
// caller has voted, 2 only after expiry. A locked poll counts as closed
// for mode 1 as well, since no further vote can ever be cast.
func resultsVisible(p store.Poll, hasVoted bool, now time.Time) bool {
	switch p.HideResults {
	case 1:
		return hasVoted || pollExpired(p, now) || p.VotingLocked
	case 2:
		return pollExpired(p, now)
	default:
		return true
	}
}

func choicePercent(votes, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(votes) * 100 / float64(total)))
}

// CastVote records a voter's choices. When the voter already has votes and
// the poll allows changing, the old rows and counters are removed before
// the new ones are written; the replace is a single transaction serialized
// per (poll, voter).
func (s *Service) CastVote(ctx context.Context, pollID, voterID int64, choiceIDs []int64) (PollView, error) {
	if len(choiceIDs) == 0 {
		return PollView{}, invalidState("at least one choice is required")
	}
	seen := make(map[int64]bool, len(choiceIDs))
	for _, id := range choiceIDs {
		if seen[id] {
			return PollView{}, invalidState("duplicate choice")
		}
		seen[id] = true
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		s.logger.Error("begin cast vote", "error", err)
		return PollView{}, storageError()
	}
	defer s.rollback(tx)

	poll, err := tx.PollForUpdate(pollID)
	if errors.Is(err, store.ErrNotFound) {
		return PollView{}, notFound("poll not found")
	}
	if err != nil {
		s.logger.Error("lock poll", "poll_id", pollID, "error", err)
		return PollView{}, storageError()
	}

	now := time.Now().UTC()
	if pollExpired(poll, now) {
		return PollView{}, invalidState("poll has expired")
	}
	if poll.VotingLocked {
		return PollView{}, invalidState("voting is locked")
	}
	if len(choiceIDs) > poll.MaxVotes {
		return PollView{}, invalidState("too many choices for this poll")
	}

	choices, err := tx.PollChoices(poll.ID)
	if err != nil {
		s.logger.Error("list poll choices", "poll_id", poll.ID, "error", err)
		return PollView{}, storageError()
	}
	valid := make(map[int64]bool, len(choices))
	for _, c := range choices {
		valid[c.ID] = true
	}
	for _, id := range choiceIDs {
		if !valid[id] {
			return PollView{}, notFound("choice not found in poll")
		}
	}

	if err := tx.LockPollVoter(poll.ID, voterID); err != nil {
		s.logger.Error("lock poll voter", "poll_id", poll.ID, "error", err)
		return PollView{}, storageError()
	}

	prior, err := tx.VoterVotes(poll.ID, voterID)
	if err != nil {
		s.logger.Error("list voter votes", "poll_id", poll.ID, "error", err)
		return PollView{}, storageError()
	}
	if len(prior) > 0 {
		if !poll.ChangeVote {
			return PollView{}, invalidState("vote already cast and changing is not allowed")
		}
		for _, v := range prior {
			if err := tx.AdjustChoiceVotes(v.ChoiceID, -1); err != nil {
				s.logger.Error("decrement choice votes", "choice_id", v.ChoiceID, "error", err)
				return PollView{}, storageError()
			}
		}
		if err := tx.DeleteVoterVotes(poll.ID, voterID); err != nil {
			s.logger.Error("delete prior votes", "poll_id", poll.ID, "error", err)
			return PollView{}, storageError()
		}
	}

	for _, id := range choiceIDs {
		if err := tx.InsertPollVote(store.PollVote{PollID: poll.ID, VoterID: voterID, ChoiceID: id, VotedAt: now}); err != nil {
			s.logger.Error("insert vote", "choice_id", id, "error", err)
			return PollView{}, storageError()
		}
		if err := tx.AdjustChoiceVotes(id, 1); err != nil {
			s.logger.Error("increment choice votes", "choice_id", id, "error", err)
			return PollView{}, storageError()
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("commit cast vote", "error", err)
		return PollView{}, storageError()
	}

	if s.notify != nil {
		if err := s.notify.PollVoteCast(ctx, poll.ID, voterID, poll.Question); err != nil {
			s.logger.Warn("vote notification failed", "poll_id", poll.ID, "error", err)
		}
	}

	return s.PollViewFor(ctx, poll.ID, &voterID)
}

// PollViewFor assembles a poll view with the visibility rules applied for
// the given viewer; nil means guest.
func (s *Service) PollViewFor(ctx context.Context, pollID int64, viewerID *int64) (PollView, error) {
	poll, err := s.store.GetPoll(ctx, pollID)
	if errors.Is(err, store.ErrNotFound) {
		return PollView{}, notFound("poll not found")
	}
	if err != nil {
		s.logger.Error("get poll", "poll_id", pollID, "error", err)
		return PollView{}, storageError()
	}

	choices, err := s.store.PollChoices(ctx, poll.ID)
	if err != nil {
		s.logger.Error("list poll choices", "poll_id", poll.ID, "error", err)
		return PollView{}, storageError()
	}

	hasVoted := false
	if viewerID != nil {
		hasVoted, err = s.store.HasVoted(ctx, poll.ID, *viewerID)
		if err != nil {
			s.logger.Error("check voted", "poll_id", poll.ID, "error", err)
			return PollView{}, storageError()
		}
	}

	now := time.Now().UTC()
	view := PollView{
		PollID:         poll.ID,
		Question:       poll.Question,
		MaxVotes:       poll.MaxVotes,
		ExpireTime:     poll.ExpireTime,
		Expired:        pollExpired(poll, now),
		VotingLocked:   poll.VotingLocked,
		ChangeVote:     poll.ChangeVote,
		HasVoted:       hasVoted,
		ResultsVisible: resultsVisible(poll, hasVoted, now),
	}

	total := 0
	for _, c := range choices {
		total += c.Votes
	}

	view.Choices = make([]PollChoiceView, 0, len(choices))
	for _, c := range choices {
		cv := PollChoiceView{ChoiceID: c.ID, Label: c.Label}
		if view.ResultsVisible {
			cv.Votes = c.Votes
			cv.Percent = choicePercent(c.Votes, total)
		}
		view.Choices = append(view.Choices, cv)
	}
	if view.ResultsVisible {
		view.TotalVotes = total
	}
	return view, nil
}

// PollVoters lists the distinct voters of a poll with display names.
func (s *Service) PollVoters(ctx context.Context, pollID int64) ([]PollVoterView, error) {
	if _, err := s.store.GetPoll(ctx, pollID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("poll not found")
		}
		s.logger.Error("get poll", "poll_id", pollID, "error", err)
		return nil, storageError()
	}
	voters, err := s.store.PollVoters(ctx, pollID)
	if err != nil {
		s.logger.Error("list poll voters", "poll_id", pollID, "error", err)
		return nil, storageError()
	}
	views := make([]PollVoterView, 0, len(voters))
	for _, v := range voters {
		views = append(views, PollVoterView{ID: v.ID, Name: v.Name})
	}
	return views, nil
}
