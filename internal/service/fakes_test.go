package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/repository"
)

// memDB 内存存储，四个 store 接口共享同一份状态
// 行为与 repository 包的 pgx 实现对齐，核心策略的测试不依赖数据库
type memDB struct {
	mu            sync.Mutex
	conversations map[int64]*model.Conversation
	pairIndex     map[string]int64
	messages      map[int64]*model.Message
	notifications []*model.Notification
	users         map[int64]*model.User
}

func newMemDB() *memDB {
	return &memDB{
		conversations: make(map[int64]*model.Conversation),
		pairIndex:     make(map[string]int64),
		messages:      make(map[int64]*model.Message),
		users:         make(map[int64]*model.User),
	}
}

func (db *memDB) addUser(u *model.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = u
}

func (db *memDB) conversationStore() *fakeConversationStore { return &fakeConversationStore{db} }
func (db *memDB) messageStore() *fakeMessageStore           { return &fakeMessageStore{db} }
func (db *memDB) userStore() *fakeUserStore                 { return &fakeUserStore{db} }
func (db *memDB) notificationStore() *fakeNotificationStore { return &fakeNotificationStore{db} }

// ---- ConversationStore ----

type fakeConversationStore struct{ db *memDB }

func (s *fakeConversationStore) CreatePrivate(_ context.Context, id int64, userA, userB int64, now time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := repository.PairKey(userA, userB)
	if _, exists := s.db.pairIndex[key]; exists {
		return false, nil
	}

	s.db.conversations[id] = &model.Conversation{
		ID:   id,
		Type: model.ConversationTypePrivate,
		Members: []model.Member{
			{UserID: userA, Role: model.MemberRoleMember, JoinedAt: now},
			{UserID: userB, Role: model.MemberRoleMember, JoinedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.db.pairIndex[key] = id
	return true, nil
}

func (s *fakeConversationStore) FindPrivateByPair(_ context.Context, userA, userB int64) (*model.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	id, ok := s.db.pairIndex[repository.PairKey(userA, userB)]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return s.db.conversations[id], nil
}

func (s *fakeConversationStore) CreateGroup(_ context.Context, conv *model.Conversation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored := *conv
	stored.UpdatedAt = conv.CreatedAt
	s.db.conversations[conv.ID] = &stored
	return nil
}

func (s *fakeConversationStore) FindByID(_ context.Context, id int64) (*model.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	conv, ok := s.db.conversations[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return conv, nil
}

func (s *fakeConversationStore) ListByUser(_ context.Context, userID int64) ([]model.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var result []model.Conversation
	for _, conv := range s.db.conversations {
		if conv.FindMember(userID) != nil {
			result = append(result, *conv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *fakeConversationStore) AddMembers(_ context.Context, convID int64, userIDs []int64, role string, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	conv := s.db.conversations[convID]
	for _, id := range userIDs {
		if conv.FindMember(id) != nil {
			continue
		}
		conv.Members = append(conv.Members, model.Member{UserID: id, Role: role, JoinedAt: now})
	}
	return nil
}

func (s *fakeConversationStore) RemoveMember(_ context.Context, convID, userID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	conv := s.db.conversations[convID]
	for i, m := range conv.Members {
		if m.UserID == userID {
			conv.Members = append(conv.Members[:i], conv.Members[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeConversationStore) UpdateLastMessage(_ context.Context, convID int64, preview *model.LastMessage) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	conv := s.db.conversations[convID]
	// 与 SQL 实现一致：预览只前进不回退，活跃时间始终前移
	if conv.LastMessage == nil || !conv.LastMessage.CreatedAt.After(preview.CreatedAt) {
		p := *preview
		conv.LastMessage = &p
	}
	if preview.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = preview.CreatedAt
	}
	return nil
}

func (s *fakeConversationStore) UpdateLastReadAt(_ context.Context, convID, userID int64, t time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if m := s.db.conversations[convID].FindMember(userID); m != nil {
		m.LastReadAt = &t
	}
	return nil
}

func (s *fakeConversationStore) Dissolve(_ context.Context, convID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for id, msg := range s.db.messages {
		if msg.ConversationID == convID {
			delete(s.db.messages, id)
		}
	}
	delete(s.db.conversations, convID)
	return nil
}

// ---- MessageStore ----

type fakeMessageStore struct{ db *memDB }

func (s *fakeMessageStore) Create(_ context.Context, msg *model.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored := *msg
	s.db.messages[msg.ID] = &stored
	return nil
}

func (s *fakeMessageStore) FindByID(_ context.Context, id int64) (*model.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	msg, ok := s.db.messages[id]
	if !ok {
		return nil, repository.ErrMessageNotFound
	}
	return msg, nil
}

func (s *fakeMessageStore) ListBefore(_ context.Context, convID int64, limit int, before *time.Time) ([]model.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var result []model.Message
	for _, msg := range s.db.messages {
		if msg.ConversationID != convID {
			continue
		}
		if before != nil && !msg.CreatedAt.Before(*before) {
			continue
		}
		result = append(result, *msg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *fakeMessageStore) MarkConversationRead(_ context.Context, convID, userID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, msg := range s.db.messages {
		if msg.ConversationID != convID {
			continue
		}
		seen := false
		for _, id := range msg.ReadBy {
			if id == userID {
				seen = true
				break
			}
		}
		if !seen {
			msg.ReadBy = append(msg.ReadBy, userID)
		}
	}
	return nil
}

func (s *fakeMessageStore) MarkUnsent(_ context.Context, msgID, senderID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	msg, ok := s.db.messages[msgID]
	if !ok || msg.SenderID != senderID {
		return repository.ErrMessageNotFound
	}
	msg.IsUnsent = true
	return nil
}

func (s *fakeMessageStore) CountByConversation(_ context.Context, convID int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	count := 0
	for _, msg := range s.db.messages {
		if msg.ConversationID == convID {
			count++
		}
	}
	return count, nil
}

// ---- UserStore ----

type fakeUserStore struct{ db *memDB }

func (s *fakeUserStore) FindByID(_ context.Context, id int64) (*model.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

// ---- NotificationStore ----

type fakeNotificationStore struct{ db *memDB }

func (s *fakeNotificationStore) Create(_ context.Context, n *model.Notification) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored := *n
	s.db.notifications = append(s.db.notifications, &stored)
	return nil
}

func (s *fakeNotificationStore) ListByRecipient(_ context.Context, recipientID int64, limit int) ([]model.Notification, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var result []model.Notification
	for _, n := range s.db.notifications {
		if n.RecipientID == recipientID {
			result = append(result, *n)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *fakeNotificationStore) MarkRead(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, n := range s.db.notifications {
		if n.ID == id {
			n.IsRead = true
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func (s *fakeNotificationStore) MarkAllRead(_ context.Context, recipientID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, n := range s.db.notifications {
		if n.RecipientID == recipientID {
			n.IsRead = true
		}
	}
	return nil
}

func (s *fakeNotificationStore) Delete(_ context.Context, recipientID, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for i, n := range s.db.notifications {
		if n.ID == id && n.RecipientID == recipientID {
			s.db.notifications = append(s.db.notifications[:i], s.db.notifications[i+1:]...)
			return nil
		}
	}
	return nil
}
