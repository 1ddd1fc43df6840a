package store

import "time"

// Capability is one named privilege from the fixed catalog. Admin membership
// alone grants nothing: every privileged operation checks its capability.
type Capability string

const (
	CapBroadcast    Capability = "broadcast"
	CapImpersonate  Capability = "impersonate"
	CapManagePerms  Capability = "manage_perms"
	CapStats        Capability = "stats"
	CapMute         Capability = "mute"
	CapExport       Capability = "export"
	CapAdminChat    Capability = "admin_chat"
	CapPrivateReply Capability = "private_reply"
)

// Catalog lists every known capability, in panel display order.
var Catalog = []Capability{
	CapBroadcast,
	CapImpersonate,
	CapManagePerms,
	CapStats,
	CapMute,
	CapExport,
	CapAdminChat,
	CapPrivateReply,
}

// Known reports whether c belongs to the catalog.
func Known(c Capability) bool {
	for _, k := range Catalog {
		if k == c {
			return true
		}
	}
	return false
}

// Capabilities maps a capability to whether the admin holds it.
// Absent keys read as false.
type Capabilities map[Capability]bool

// User represents a registered participant mirrored from Telegram identity.
// Anon is the pseudonym suffix, assigned once and never changed afterwards.
type User struct {
	ID         int64     `json:"id"`
	Handle     string    `json:"handle,omitempty"` // "@name", may be absent
	Anon       int       `json:"anon"`
	MutedUntil int64     `json:"muted_until"` // unix seconds, 0 = not muted
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Muted reports whether the user is muted at the given instant.
func (u *User) Muted(now time.Time) bool {
	return u.MutedUntil > 0 && now.Unix() < u.MutedUntil
}

// Store is the whole persisted document: one logical unit of durability and
// one unit of locking. No per-entity versioning.
type Store struct {
	Users        map[int64]*User         `json:"users"`
	Admins       []string                `json:"admins"`
	Banned       []string                `json:"banned"`
	Permissions  map[string]Capabilities `json:"permissions"`
	MessageCount int                     `json:"message_count"`
	AdminChat    bool                    `json:"admin_chat_enabled"`
}

// NewStore returns an empty store with all maps allocated.
func NewStore() *Store {
	return &Store{
		Users:       make(map[int64]*User),
		Admins:      []string{},
		Banned:      []string{},
		Permissions: make(map[string]Capabilities),
	}
}

// Normalize allocates any nil collections after decoding a document written
// by an older revision.
func (s *Store) Normalize() {
	if s.Users == nil {
		s.Users = make(map[int64]*User)
	}
	if s.Admins == nil {
		s.Admins = []string{}
	}
	if s.Banned == nil {
		s.Banned = []string{}
	}
	if s.Permissions == nil {
		s.Permissions = make(map[string]Capabilities)
	}
}

// Clone returns a deep copy, used for rollback when a save fails.
func (s *Store) Clone() *Store {
	c := &Store{
		Users:        make(map[int64]*User, len(s.Users)),
		Admins:       append([]string{}, s.Admins...),
		Banned:       append([]string{}, s.Banned...),
		Permissions:  make(map[string]Capabilities, len(s.Permissions)),
		MessageCount: s.MessageCount,
		AdminChat:    s.AdminChat,
	}
	for id, u := range s.Users {
		cu := *u
		c.Users[id] = &cu
	}
	for h, caps := range s.Permissions {
		cc := make(Capabilities, len(caps))
		for k, v := range caps {
			cc[k] = v
		}
		c.Permissions[h] = cc
	}
	return c
}

// IsAdmin reports whether the handle is a member of the admin set.
func (s *Store) IsAdmin(handle string) bool {
	for _, a := range s.Admins {
		if a == handle {
			return true
		}
	}
	return false
}

// IsBanned reports whether the handle is banned.
func (s *Store) IsBanned(handle string) bool {
	for _, b := range s.Banned {
		if b == handle {
			return true
		}
	}
	return false
}

// HasCapability reports whether handle is an admin holding c. Unknown
// handles and unknown capabilities are always false.
func (s *Store) HasCapability(handle string, c Capability) bool {
	if !s.IsAdmin(handle) || !Known(c) {
		return false
	}
	return s.Permissions[handle][c]
}

// UserByHandle returns the most recently registered user claiming handle.
func (s *Store) UserByHandle(handle string) (*User, bool) {
	u, ok := s.Users[s.handleIndex()[handle]]
	return u, ok && u != nil
}

// UserByAnon resolves a pseudonym suffix to its owner.
func (s *Store) UserByAnon(anon int) (*User, bool) {
	for _, u := range s.Users {
		if u.Anon == anon {
			return u, true
		}
	}
	return nil, false
}

// handleIndex maps handle to owner id; when two users ever claimed the same
// handle the most recently refreshed claim wins.
func (s *Store) handleIndex() map[string]int64 {
	idx := make(map[string]int64, len(s.Users))
	for id, u := range s.Users {
		if u.Handle == "" {
			continue
		}
		if prev, ok := idx[u.Handle]; !ok || u.UpdatedAt.After(s.Users[prev].UpdatedAt) {
			idx[u.Handle] = id
		}
	}
	return idx
}
