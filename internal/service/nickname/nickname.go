// Package nickname owns the invariant that nicknames are unique within a
// channel. It generates, persists and resolves per-(user, channel) nicknames.
package nickname

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/store"
	"github.com/lbessard/canal/internal/utils"
)

// maxAttempts bounds the suffix retry loop. With 9000 possible suffixes per
// base name a cap of 100 turns collision exhaustion into a conflict error
// instead of a livelock.
const maxAttempts = 100

// Resolver assigns and resolves per-channel nicknames.
type Resolver struct {
	store store.MembershipStore
	log   *zerolog.Logger
}

// NewResolver creates a nickname resolver backed by the given store.
func NewResolver(st store.MembershipStore, logger *zerolog.Logger) *Resolver {
	return &Resolver{store: st, log: logger}
}

// Assign binds (channelID, userID) to a nickname derived from desired. If
// desired is held by another member the nickname gets a random 4-digit
// suffix and the check retries. A member who already holds a binding keeps
// it unchanged, even when it was disambiguated away from desired; only an
// explicit Rename replaces an existing binding.
func (r *Resolver) Assign(ctx context.Context, channelID, userID, desired string) (string, error) {
	current, err := r.store.GetMembership(ctx, channelID, userID)
	switch {
	case err == nil:
		return current.Nickname, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", core.StorageError(err)
	}
	return r.disambiguate(ctx, channelID, userID, desired, false)
}

// disambiguate runs the suffix retry loop until a free nickname derived from
// desired is persisted for the member.
func (r *Resolver) disambiguate(ctx context.Context, channelID, userID, desired string, update bool) (string, error) {
	candidate := desired
	for attempt := 0; attempt < maxAttempts; attempt++ {
		owner, err := r.store.GetMembershipByNickname(ctx, channelID, candidate)
		switch {
		case err == nil && owner.UserID == userID:
			// The user already holds this exact nickname.
			return candidate, nil
		case err == nil:
			candidate = utils.SuffixName(desired)
			continue
		case !errors.Is(err, store.ErrNotFound):
			return "", core.StorageError(err)
		}

		if err := r.persist(ctx, channelID, userID, candidate, update); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// Lost a race for the candidate; pick another suffix.
				candidate = utils.SuffixName(desired)
				continue
			}
			return "", core.StorageError(err)
		}
		if candidate != desired {
			r.log.Debug().
				Str("channel_id", channelID).
				Str("user_id", userID).
				Str("nickname", candidate).
				Msg("nickname disambiguated")
		}
		return candidate, nil
	}

	return "", core.DomainRule(fmt.Sprintf("could not find a free nickname for %q", desired))
}

func (r *Resolver) persist(ctx context.Context, channelID, userID, nickname string, update bool) error {
	if update {
		return r.store.UpdateNickname(ctx, channelID, userID, nickname)
	}
	return r.store.AddMember(ctx, &store.Membership{
		ChannelID: channelID,
		UserID:    userID,
		Nickname:  nickname,
	})
}

// Resolve returns the nickname a user holds in a channel.
func (r *Resolver) Resolve(ctx context.Context, channelID, userID string) (string, error) {
	m, err := r.store.GetMembership(ctx, channelID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", core.ErrMemberNotFound
		}
		return "", core.StorageError(err)
	}
	return m.Nickname, nil
}

// ResolveUser returns the user currently holding a nickname in a channel.
func (r *Resolver) ResolveUser(ctx context.Context, channelID, nick string) (string, error) {
	m, err := r.store.GetMembershipByNickname(ctx, channelID, nick)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", core.ErrMemberNotFound
		}
		return "", core.StorageError(err)
	}
	return m.UserID, nil
}

// Rename changes a member's nickname. The member must already hold a binding
// in the channel. Renaming to the current nickname short-circuits as a
// no-op success.
func (r *Resolver) Rename(ctx context.Context, channelID, userID, newName string) (string, error) {
	current, err := r.Resolve(ctx, channelID, userID)
	if err != nil {
		return "", err
	}
	if newName == current {
		return current, nil
	}
	return r.disambiguate(ctx, channelID, userID, newName, true)
}
