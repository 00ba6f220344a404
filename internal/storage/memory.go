package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkeye/owndc/internal/domain"
)

type memberKey struct {
	channel domain.RoomID
	user    domain.UserID
}

type groupKey struct {
	group domain.GroupID
	user  domain.UserID
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[domain.UserID]*domain.User
	friends  map[string]*domain.Friendship
	channels map[domain.RoomID]*domain.Channel
	members  map[memberKey]struct{}
	groups   map[domain.GroupID]*domain.Group
	grouped  map[groupKey]domain.GroupRole
	messages []domain.Message
	dms      []domain.DirectMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[domain.UserID]*domain.User),
		friends:  make(map[string]*domain.Friendship),
		channels: make(map[domain.RoomID]*domain.Channel),
		members:  make(map[memberKey]struct{}),
		groups:   make(map[domain.GroupID]*domain.Group),
		grouped:  make(map[groupKey]domain.GroupRole),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateUser(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.ID == u.ID || existing.Username == u.Username || existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) findUser(match func(*domain.User) bool) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.findUser(func(u *domain.User) bool { return u.Username == username })
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.findUser(func(u *domain.User) bool { return u.Email == email })
}

func (s *MemoryStore) SetUserStatus(ctx context.Context, id domain.UserID, status domain.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	return nil
}

// other returns the counterpart of id in f, or "" when id is not part of it.
func other(f *domain.Friendship, id domain.UserID) domain.UserID {
	switch id {
	case f.UserID:
		return f.FriendID
	case f.FriendID:
		return f.UserID
	}
	return ""
}

func (s *MemoryStore) sortedFriendships() []*domain.Friendship {
	out := make([]*domain.Friendship, 0, len(s.friends))
	for _, f := range s.friends {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) GetAcceptedFriends(ctx context.Context, id domain.UserID) ([]domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Profile{}
	for _, f := range s.sortedFriendships() {
		if f.Status != domain.FriendshipAccepted {
			continue
		}
		peer := other(f, id)
		if peer == "" || peer == id {
			continue
		}
		if u, ok := s.users[peer]; ok {
			out = append(out, u.Profile())
		}
	}
	return out, nil
}

func (s *MemoryStore) entry(f *domain.Friendship, peer domain.UserID) (domain.FriendEntry, bool) {
	u, ok := s.users[peer]
	if !ok {
		return domain.FriendEntry{}, false
	}
	return domain.FriendEntry{
		FriendshipID: f.ID,
		Status:       f.Status,
		ID:           u.ID,
		Username:     u.Username,
		Avatar:       u.Avatar,
		UserStatus:   u.Status,
	}, true
}

func (s *MemoryStore) ListFriendships(ctx context.Context, id domain.UserID) (*domain.FriendList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := &domain.FriendList{
		Friends:         []domain.FriendEntry{},
		PendingRequests: []domain.FriendEntry{},
		SentRequests:    []domain.FriendEntry{},
	}
	for _, f := range s.sortedFriendships() {
		switch {
		case f.Status == domain.FriendshipAccepted && other(f, id) != "":
			if e, ok := s.entry(f, other(f, id)); ok {
				list.Friends = append(list.Friends, e)
			}
		case f.Status == domain.FriendshipPending && f.FriendID == id:
			if e, ok := s.entry(f, f.UserID); ok {
				list.PendingRequests = append(list.PendingRequests, e)
			}
		case f.Status == domain.FriendshipPending && f.UserID == id:
			if e, ok := s.entry(f, f.FriendID); ok {
				list.SentRequests = append(list.SentRequests, e)
			}
		}
	}
	return list, nil
}

func (s *MemoryStore) GetFriendshipBetween(ctx context.Context, a, b domain.UserID) (*domain.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.friends {
		if (f.UserID == a && f.FriendID == b) || (f.UserID == b && f.FriendID == a) {
			cp := *f
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateFriendRequest(ctx context.Context, f *domain.Friendship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.friends {
		if existing.UserID == f.UserID && existing.FriendID == f.FriendID {
			return ErrAlreadyExists
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	f.Status = domain.FriendshipPending
	cp := *f
	s.friends[f.ID] = &cp
	return nil
}

func (s *MemoryStore) AcceptFriendRequest(ctx context.Context, friendshipID string, receiver domain.UserID) (*domain.Friendship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.friends[friendshipID]
	if !ok || f.FriendID != receiver || f.Status != domain.FriendshipPending {
		return nil, ErrNotFound
	}
	f.Status = domain.FriendshipAccepted
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) DeclineFriendRequest(ctx context.Context, friendshipID string, receiver domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.friends[friendshipID]
	if !ok || f.FriendID != receiver || f.Status != domain.FriendshipPending {
		return ErrNotFound
	}
	delete(s.friends, friendshipID)
	return nil
}

func (s *MemoryStore) RemoveFriend(ctx context.Context, friendshipID string, user domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.friends[friendshipID]
	if !ok || other(f, user) == "" {
		return ErrNotFound
	}
	delete(s.friends, friendshipID)
	return nil
}

func (s *MemoryStore) CreateChannel(ctx context.Context, ch *domain.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[ch.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *ch
	s.channels[ch.ID] = &cp
	s.members[memberKey{channel: ch.ID, user: ch.OwnerID}] = struct{}{}
	return nil
}

func (s *MemoryStore) GetChannel(ctx context.Context, id domain.RoomID) (*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *MemoryStore) ListChannelsForUser(ctx context.Context, user domain.UserID) ([]domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Channel{}
	for key := range s.members {
		if key.user != user {
			continue
		}
		if ch, ok := s.channels[key.channel]; ok {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[channel]; !ok {
		return ErrNotFound
	}
	if _, ok := s.users[user]; !ok {
		return ErrNotFound
	}
	s.members[memberKey{channel: channel, user: user}] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{channel: channel, user: user}
	if _, ok := s.members[key]; !ok {
		return ErrNotFound
	}
	delete(s.members, key)
	return nil
}

func (s *MemoryStore) ListChannels(ctx context.Context) ([]domain.ChannelSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.RoomID]int, len(s.channels))
	for key := range s.members {
		counts[key.channel]++
	}
	out := []domain.ChannelSummary{}
	for _, ch := range s.channels {
		sum := domain.ChannelSummary{Channel: *ch, MemberCount: counts[ch.ID]}
		if u, ok := s.users[ch.OwnerID]; ok {
			sum.OwnerUsername = u.Username
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteChannel(ctx context.Context, id domain.RoomID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[id]; !ok {
		return ErrNotFound
	}
	delete(s.channels, id)
	for key := range s.members {
		if key.channel == id {
			delete(s.members, key)
		}
	}
	s.messages = slices.DeleteFunc(s.messages, func(m domain.Message) bool { return m.ChannelID == id })
	return nil
}

func (s *MemoryStore) IsChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[memberKey{channel: channel, user: user}]
	return ok, nil
}

// Groups

func (s *MemoryStore) CreateGroup(ctx context.Context, g *domain.Group) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *g
	s.groups[g.ID] = &cp
	s.grouped[groupKey{group: g.ID, user: g.OwnerID}] = domain.GroupOwner
	return nil
}

func (s *MemoryStore) GetGroup(ctx context.Context, id domain.GroupID) (*domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) ListGroupsForUser(ctx context.Context, user domain.UserID) ([]domain.GroupSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.GroupID]int)
	mine := make(map[domain.GroupID]bool)
	for key := range s.grouped {
		counts[key.group]++
		if key.user == user {
			mine[key.group] = true
		}
	}
	out := []domain.GroupSummary{}
	for id := range mine {
		g, ok := s.groups[id]
		if !ok {
			continue
		}
		sum := domain.GroupSummary{Group: *g, MemberCount: counts[id]}
		if u, ok := s.users[g.OwnerID]; ok {
			sum.OwnerUsername = u.Username
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddGroupMember(ctx context.Context, group domain.GroupID, user domain.UserID, role domain.GroupRole) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group]; !ok {
		return ErrNotFound
	}
	if _, ok := s.users[user]; !ok {
		return ErrNotFound
	}
	key := groupKey{group: group, user: user}
	if _, ok := s.grouped[key]; ok {
		return ErrAlreadyExists
	}
	s.grouped[key] = role
	return nil
}

func (s *MemoryStore) IsGroupMember(ctx context.Context, group domain.GroupID, user domain.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grouped[groupKey{group: group, user: user}]
	return ok, nil
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, id domain.GroupID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return ErrNotFound
	}
	delete(s.groups, id)
	for key := range s.grouped {
		if key.group == id {
			delete(s.grouped, key)
		}
	}
	return nil
}

// Messages

func (s *MemoryStore) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[m.SenderID]; ok {
		m.SenderUsername = u.Username
		m.SenderAvatar = u.Avatar
	}
	s.messages = append(s.messages, *m)
	return m, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, channel domain.RoomID, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Message{}
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if s.messages[i].ChannelID == channel {
			out = append(out, s.messages[i])
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *MemoryStore) InsertDirectMessage(ctx context.Context, m *domain.DirectMessage) (*domain.DirectMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[m.SenderID]; ok {
		m.SenderUsername = u.Username
		m.SenderAvatar = u.Avatar
	}
	s.dms = append(s.dms, *m)
	return m, nil
}

func (s *MemoryStore) ListDirectMessages(ctx context.Context, a, b domain.UserID, limit int) ([]domain.DirectMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.DirectMessage{}
	for i := len(s.dms) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.dms[i]
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	slices.Reverse(out)
	return out, nil
}
