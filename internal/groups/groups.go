// Package groups computes the effective group memberships for a caller.
package groups

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"parlor/api/internal/store"
)

const (
	Guest           = 0
	Admin           = 1
	GlobalModerator = 2
	Moderator       = 3
	Member          = 4
)

// Fallback policies for an authenticated id with no member row. "admin"
// matches the legacy behavior for accounts provisioned outside the member
// store; "guest" is the strict alternative.
const (
	FallbackAdmin = "admin"
	FallbackGuest = "guest"
)

type memberStore interface {
	GetMember(ctx context.Context, memberID int64) (store.Member, error)
}

type Resolver struct {
	members  memberStore
	fallback string
	logger   *slog.Logger
}

func NewResolver(members memberStore, fallback string, logger *slog.Logger) *Resolver {
	if fallback != FallbackGuest {
		fallback = FallbackAdmin
	}
	return &Resolver{members: members, fallback: fallback, logger: logger}
}

// Resolve returns the ordered, deduplicated group set for a caller. A nil
// userID means guest. The result is never empty.
func (r *Resolver) Resolve(ctx context.Context, userID *int64) []int {
	if userID == nil {
		return []int{Guest}
	}

	member, err := r.members.GetMember(ctx, *userID)
	if errors.Is(err, store.ErrNotFound) {
		if r.fallback == FallbackGuest {
			return []int{Guest}
		}
		r.logger.Warn("member missing, falling back to administrator group", "member_id", *userID)
		return []int{Admin}
	}
	if err != nil {
		r.logger.Warn("group resolution failed, treating caller as guest", "member_id", *userID, "error", err)
		return []int{Guest}
	}

	return FromMember(member)
}

// FromMember builds the group set from a member row: primary group, the
// post-count group when different, then any additional groups.
func FromMember(m store.Member) []int {
	set := []int{m.PrimaryGroup}
	if m.PostGroup != m.PrimaryGroup {
		set = append(set, m.PostGroup)
	}
	for _, extra := range ParseList(m.ExtraGroups) {
		if !Contains(set, extra) {
			set = append(set, extra)
		}
	}
	return set
}

// ParseList parses a legacy comma-separated group list, dropping anything
// non-numeric.
func ParseList(raw string) []int {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func Contains(set []int, id int) bool {
	for _, g := range set {
		if g == id {
			return true
		}
	}
	return false
}
