package chat

import "sync"

// PresenceTracker records which users are actively viewing which group
// chats. It is ephemeral, in-memory state rebuilt from socket join/leave
// events; durable membership lives in the group_members table. A user may
// hold several connections into the same group, so entries are
// reference-counted. The user index makes disconnect cleanup O(1) per
// group the user was viewing.
type PresenceTracker struct {
	mu     sync.RWMutex
	groups map[string]map[int]int
	users  map[int]map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		groups: make(map[string]map[int]int),
		users:  make(map[int]map[string]struct{}),
	}
}

// Add marks the user present in the group and returns true when this is
// the user's first connection into it.
func (p *PresenceTracker) Add(slug string, userId int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.groups[slug] == nil {
		p.groups[slug] = make(map[int]int)
	}
	p.groups[slug][userId]++

	if p.users[userId] == nil {
		p.users[userId] = make(map[string]struct{})
	}
	p.users[userId][slug] = struct{}{}

	return p.groups[slug][userId] == 1
}

// Remove drops one connection's presence and returns true when the user
// has no connections left in the group.
func (p *PresenceTracker) Remove(slug string, userId int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.remove(slug, userId)
}

func (p *PresenceTracker) remove(slug string, userId int) bool {
	users, ok := p.groups[slug]
	if !ok {
		return false
	}

	users[userId]--
	if users[userId] > 0 {
		return false
	}

	delete(users, userId)
	if len(users) == 0 {
		delete(p.groups, slug)
	}

	if slugs, ok := p.users[userId]; ok {
		delete(slugs, slug)
		if len(slugs) == 0 {
			delete(p.users, userId)
		}
	}

	return true
}

// RemoveAll clears the user from every group they are present in and
// returns the affected slugs. Used when a connection drops without
// leaving its groups first.
func (p *PresenceTracker) RemoveAll(userId int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	slugs := make([]string, 0, len(p.users[userId]))
	for slug := range p.users[userId] {
		if p.remove(slug, userId) {
			slugs = append(slugs, slug)
		}
	}

	return slugs
}

func (p *PresenceTracker) IsPresent(slug string, userId int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.groups[slug][userId] > 0
}

// MembersOf returns the ids of users currently present in the group.
func (p *PresenceTracker) MembersOf(slug string) []int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]int, 0, len(p.groups[slug]))
	for id := range p.groups[slug] {
		ids = append(ids, id)
	}

	return ids
}
