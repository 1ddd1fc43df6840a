package perms

import (
	"context"

	apperrors "anonrelay-bot/internal/common/errors"
	"anonrelay-bot/internal/common/logger"
	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/state"
)

// Service is the permission model: the admin set and each admin's capability
// record. Authorization everywhere in the bot is IsAdmin AND HasCapability;
// admin membership alone never grants a privileged operation.
type Service struct {
	engine    *state.Engine
	bootstrap string
}

func NewService(engine *state.Engine, bootstrap string) *Service {
	return &Service{engine: engine, bootstrap: bootstrap}
}

// Bootstrap returns the configured bootstrap admin handle.
func (s *Service) Bootstrap() string {
	return s.bootstrap
}

// EnsureBootstrap makes the bootstrap admin exist with the full capability
// set. Called once at startup; a no-op when the record is already complete.
func (s *Service) EnsureBootstrap(ctx context.Context) error {
	complete := false
	s.engine.View(func(st *store.Store) {
		if !st.IsAdmin(s.bootstrap) {
			return
		}
		caps := st.Permissions[s.bootstrap]
		for _, c := range store.Catalog {
			if !caps[c] {
				return
			}
		}
		complete = true
	})
	if complete {
		return nil
	}

	return s.engine.Update(ctx, func(st *store.Store) error {
		if !st.IsAdmin(s.bootstrap) {
			st.Admins = append(st.Admins, s.bootstrap)
		}
		caps := st.Permissions[s.bootstrap]
		if caps == nil {
			caps = make(store.Capabilities, len(store.Catalog))
			st.Permissions[s.bootstrap] = caps
		}
		for _, c := range store.Catalog {
			caps[c] = true
		}
		return nil
	})
}

// IsAdmin reports admin membership for the handle.
func (s *Service) IsAdmin(handle string) bool {
	var ok bool
	s.engine.View(func(st *store.Store) {
		ok = st.IsAdmin(handle)
	})
	return ok
}

// HasCapability reports whether handle is an admin holding c. Unknown
// handles and unknown capabilities never hold anything.
func (s *Service) HasCapability(handle string, c store.Capability) bool {
	var ok bool
	s.engine.View(func(st *store.Store) {
		ok = st.HasCapability(handle, c)
	})
	return ok
}

// GrantAdmin adds the handle to the admin set with an empty capability
// record. Returns false when the handle already was an admin.
func (s *Service) GrantAdmin(ctx context.Context, handle string) (bool, error) {
	added := false
	err := s.engine.Update(ctx, func(st *store.Store) error {
		if st.IsAdmin(handle) {
			return nil
		}
		st.Admins = append(st.Admins, handle)
		if st.Permissions[handle] == nil {
			st.Permissions[handle] = make(store.Capabilities)
		}
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if added {
		logger.Info().Str("handle", handle).Msg("Admin granted")
	}
	return added, nil
}

// RevokeAdmin removes the handle from the admin set together with its whole
// capability record. The bootstrap admin cannot be revoked.
func (s *Service) RevokeAdmin(ctx context.Context, handle string) error {
	if handle == s.bootstrap {
		return apperrors.NewForbiddenError("bootstrap admin cannot be removed")
	}
	err := s.engine.Update(ctx, func(st *store.Store) error {
		if !st.IsAdmin(handle) {
			return apperrors.NewNotFoundError("admin", handle)
		}
		admins := st.Admins[:0]
		for _, a := range st.Admins {
			if a != handle {
				admins = append(admins, a)
			}
		}
		st.Admins = admins
		delete(st.Permissions, handle)
		return nil
	})
	if err == nil {
		logger.Info().Str("handle", handle).Msg("Admin revoked")
	}
	return err
}

// ToggleCapability flips one stored bit and returns the new value. A handle
// without a capability record gets an all-false one first, so a single
// toggle only ever turns exactly one capability on. The bootstrap admin's
// capability set is immutable.
func (s *Service) ToggleCapability(ctx context.Context, handle string, c store.Capability) (bool, error) {
	if !store.Known(c) {
		return false, apperrors.NewValidationError("capability", "unknown capability "+string(c))
	}
	if handle == s.bootstrap {
		return false, apperrors.NewForbiddenError("bootstrap admin capabilities are immutable")
	}

	var value bool
	err := s.engine.Update(ctx, func(st *store.Store) error {
		caps := st.Permissions[handle]
		if caps == nil {
			caps = make(store.Capabilities)
			st.Permissions[handle] = caps
		}
		caps[c] = !caps[c]
		value = caps[c]
		return nil
	})
	if err != nil {
		return false, err
	}
	logger.Info().Str("handle", handle).Str("capability", string(c)).Bool("value", value).Msg("Capability toggled")
	return value, nil
}

// Capabilities returns a copy of the handle's capability record, all-false
// for handles without one.
func (s *Service) Capabilities(handle string) store.Capabilities {
	out := make(store.Capabilities, len(store.Catalog))
	s.engine.View(func(st *store.Store) {
		for _, c := range store.Catalog {
			out[c] = st.Permissions[handle][c]
		}
	})
	return out
}
