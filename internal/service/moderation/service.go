package moderation

import (
	"context"
	"time"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/common/logger"
	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/state"
)

// Service holds moderation state: the ban set (handle-keyed, no expiry) and
// per-user mute deadlines (time-bounded, self-expiring).
type Service struct {
	engine *state.Engine
	now    func() time.Time
}

func NewService(engine *state.Engine) *Service {
	return &Service{engine: engine, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Ban adds the handle to the ban set. Returns false when it already was
// banned; that is a report, not an error.
func (s *Service) Ban(ctx context.Context, handle string) (bool, error) {
	banned := false
	err := s.engine.Update(ctx, func(st *store.Store) error {
		if st.IsBanned(handle) {
			return nil
		}
		st.Banned = append(st.Banned, handle)
		banned = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if banned {
		logger.Info().Str("handle", handle).Msg("User banned")
	}
	return banned, nil
}

// Unban removes the handle from the ban set. Returns false when the handle
// was not banned.
func (s *Service) Unban(ctx context.Context, handle string) (bool, error) {
	removed := false
	err := s.engine.Update(ctx, func(st *store.Store) error {
		banned := st.Banned[:0]
		for _, b := range st.Banned {
			if b == handle {
				removed = true
				continue
			}
			banned = append(banned, b)
		}
		st.Banned = banned
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		logger.Info().Str("handle", handle).Msg("User unbanned")
	}
	return removed, nil
}

// IsBanned reports ban-set membership for the handle.
func (s *Service) IsBanned(handle string) bool {
	var ok bool
	s.engine.View(func(st *store.Store) {
		ok = st.IsBanned(handle)
	})
	return ok
}

// Mute silences the user until now + minutes. Minutes must be positive;
// zero is the explicit "clear mute", negative is malformed.
func (s *Service) Mute(ctx context.Context, id int64, minutes int) error {
	if minutes < 0 {
		return apperrors.NewValidationError("minutes", "duration must be a positive number of minutes")
	}
	err := s.engine.Update(ctx, func(st *store.Store) error {
		u, ok := st.Users[id]
		if !ok {
			return apperrors.NewNotFoundError("user", id)
		}
		if minutes == 0 {
			u.MutedUntil = 0
		} else {
			u.MutedUntil = s.now().Add(time.Duration(minutes) * time.Minute).Unix()
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info().Int64("user_id", id).Int("minutes", minutes).Msg("Mute applied")
	return nil
}

// IsPostable reports whether the user may post right now: registered, not
// banned by their current handle, and not muted. Receiving is never gated
// by postability, only sending.
func (s *Service) IsPostable(id int64) bool {
	var ok bool
	s.engine.View(func(st *store.Store) {
		u, found := st.Users[id]
		if !found {
			return
		}
		if u.Handle != "" && st.IsBanned(u.Handle) {
			return
		}
		ok = !u.Muted(s.now())
	})
	return ok
}
