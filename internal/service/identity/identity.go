// Package identity creates user identities with globally disambiguated
// display names and enrolls every new user into the default channel.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/service/membership"
	"github.com/lbessard/canal/internal/store"
	"github.com/lbessard/canal/internal/utils"
)

// maxAttempts bounds the display-name retry loop. With random 4-digit
// suffixes the residual collision probability is accepted; exhausting the
// cap surfaces as a conflict instead of looping forever.
const maxAttempts = 100

// Service is the identity store.
type Service struct {
	store   store.Store
	members *membership.Manager
	log     *zerolog.Logger
}

// NewService creates an identity service.
func NewService(st store.Store, members *membership.Manager, logger *zerolog.Logger) *Service {
	return &Service{store: st, members: members, log: logger}
}

// CreateUser creates a user with the requested display name, appending a
// random 4-digit suffix while the name is taken, then enrolls the user into
// #general. Creation and enrollment form one logical transaction: if the
// enrollment fails the user record is removed again.
//
// The bind hook, when non-nil, runs after the user is persisted but before
// the enrollment, so a live session can be bound to the new identity in time
// to receive its own auto-join fan-out. If creation is rolled back the hook
// runs once more with nil so the caller can revert that binding.
func (s *Service) CreateUser(ctx context.Context, requestedName string, bind func(*store.User)) (*store.User, error) {
	base := strings.TrimSpace(requestedName)
	if base == "" {
		// Anonymous sessions get a guest name and go through the same
		// disambiguation as everyone else.
		base = fmt.Sprintf("guest%d", utils.NameSuffix())
	}

	user, err := s.createWithFreeName(ctx, base)
	if err != nil {
		return nil, err
	}
	if bind != nil {
		bind(user)
	}

	if _, _, err := s.members.Join(ctx, user.ID, membership.GeneralChannel); err != nil {
		// Enrollment is part of user creation; roll the user back so no
		// identity exists outside #general.
		if delErr := s.store.DeleteUser(ctx, user.ID); delErr != nil {
			s.log.Warn().Err(delErr).Str("user_id", user.ID).Msg("failed to roll back user after enroll failure")
		}
		if bind != nil {
			// The bound identity no longer exists.
			bind(nil)
		}
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Str("name", user.Name).Msg("user created")
	return user, nil
}

func (s *Service) createWithFreeName(ctx context.Context, base string) (*store.User, error) {
	candidate := base
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := s.store.GetUserByName(ctx, candidate)
		switch {
		case err == nil:
			candidate = utils.SuffixName(base)
			continue
		case !errors.Is(err, store.ErrNotFound):
			return nil, core.StorageError(err)
		}

		user := &store.User{ID: utils.NewID(), Name: candidate}
		if err := s.store.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// Lost a race for the name; pick another suffix.
				candidate = utils.SuffixName(base)
				continue
			}
			return nil, core.StorageError(err)
		}
		return user, nil
	}

	return nil, core.DomainRule(fmt.Sprintf("could not find a free name for %q", base))
}

// User retrieves a user by id.
func (s *Service) User(ctx context.Context, id string) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, core.StorageError(err)
	}
	return user, nil
}
