package identity

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"anonrelay-bot/internal/common/logger"
	"anonrelay-bot/internal/domain/store"
	"anonrelay-bot/internal/state"
)

// Service assigns and resolves anonymous pseudonyms. A pseudonym is allocated
// exactly once, on first sighting, and never reassigned afterwards.
type Service struct {
	engine   *state.Engine
	min, max int
}

func NewService(engine *state.Engine, min, max int) *Service {
	if min <= 0 || max < min {
		min, max = 1000, 99999
	}
	return &Service{engine: engine, min: min, max: max}
}

// Register is idempotent: a known id keeps its pseudonym no matter how often
// it re-registers; only the stored handle is refreshed. New users are
// flushed to the store before Register returns.
func (s *Service) Register(ctx context.Context, id int64, handle string) (int, error) {
	var anon int
	var created bool

	// Быстрый путь без записи: пользователь известен и handle не менялся
	known := false
	s.engine.View(func(st *store.Store) {
		if u, ok := st.Users[id]; ok && (handle == "" || u.Handle == handle) {
			anon = u.Anon
			known = true
		}
	})
	if known {
		return anon, nil
	}

	err := s.engine.Update(ctx, func(st *store.Store) error {
		if u, ok := st.Users[id]; ok {
			if handle != "" && u.Handle != handle {
				u.Handle = handle
				u.UpdatedAt = time.Now()
			}
			anon = u.Anon
			return nil
		}
		now := time.Now()
		anon = allocateAnon(st, s.min, s.max)
		st.Users[id] = &store.User{
			ID:        id,
			Handle:    handle,
			Anon:      anon,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created = true
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created {
		logger.Info().Int64("user_id", id).Int("anon", anon).Msg("New user registered")
	}
	return anon, nil
}

// HandleOf returns the stored handle for the id, if any.
func (s *Service) HandleOf(id int64) (string, bool) {
	var handle string
	var ok bool
	s.engine.View(func(st *store.Store) {
		if u, found := st.Users[id]; found && u.Handle != "" {
			handle, ok = u.Handle, true
		}
	})
	return handle, ok
}

// IDByHandle resolves a handle to its owner, exact case-sensitive match;
// when several users claimed the handle over time the most recent claim wins.
func (s *Service) IDByHandle(handle string) (int64, bool) {
	var id int64
	var ok bool
	s.engine.View(func(st *store.Store) {
		if u, found := st.UserByHandle(handle); found {
			id, ok = u.ID, true
		}
	})
	return id, ok
}

// IDByAnon resolves a pseudonym suffix to its owner.
func (s *Service) IDByAnon(anon int) (int64, bool) {
	var id int64
	var ok bool
	s.engine.View(func(st *store.Store) {
		if u, found := st.UserByAnon(anon); found {
			id, ok = u.ID, true
		}
	})
	return id, ok
}

// PseudonymOf returns the display pseudonym for a registered id.
func (s *Service) PseudonymOf(id int64) (string, bool) {
	var name string
	var ok bool
	s.engine.View(func(st *store.Store) {
		if u, found := st.Users[id]; found {
			name, ok = Pseudonym(u.Anon), true
		}
	})
	return name, ok
}

// Pseudonym formats a suffix as the display pseudonym.
func Pseudonym(anon int) string {
	return fmt.Sprintf("Anon#%d", anon)
}

// allocateAnon draws a free suffix from [min, max]. Collisions are retried;
// with the user count far below the range size a handful of draws suffices,
// the sequential sweep is the pathological-fill fallback.
func allocateAnon(st *store.Store, min, max int) int {
	taken := make(map[int]bool, len(st.Users))
	for _, u := range st.Users {
		taken[u.Anon] = true
	}
	for i := 0; i < 100; i++ {
		n := min + rand.Intn(max-min+1)
		if !taken[n] {
			return n
		}
	}
	for n := min; n <= max; n++ {
		if !taken[n] {
			return n
		}
	}
	return min
}
