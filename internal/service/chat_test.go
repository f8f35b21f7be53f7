package service

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/errors"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/pkg/snowflake"
)

func newTestChatService(t *testing.T, db *memDB) *ChatService {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("Failed to create snowflake node: %v", err)
	}
	return NewChatService(
		db.conversationStore(),
		db.messageStore(),
		db.userStore(),
		db.notificationStore(),
		node,
	)
}

func seedUsers(db *memDB, ids ...int64) {
	for _, id := range ids {
		db.addUser(&model.User{ID: id, DisplayName: "用户", Avatar: ""})
	}
}

func TestGetOrCreatePrivate_Idempotent(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv1, created, err := svc.GetOrCreatePrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetOrCreatePrivate failed: %v", err)
	}
	if !created {
		t.Error("Expected created=true on first call")
	}

	// 重复调用与交换参数顺序都应返回同一个会话
	conv2, created, err := svc.GetOrCreatePrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Second GetOrCreatePrivate failed: %v", err)
	}
	if created {
		t.Error("Expected created=false on repeated call")
	}
	if conv2.ID != conv1.ID {
		t.Errorf("Expected same conversation %d, got %d", conv1.ID, conv2.ID)
	}

	conv3, created, err := svc.GetOrCreatePrivate(ctx, 2, 1)
	if err != nil {
		t.Fatalf("Swapped GetOrCreatePrivate failed: %v", err)
	}
	if created || conv3.ID != conv1.ID {
		t.Errorf("Swapped pair should resolve to conversation %d, got %d (created=%v)", conv1.ID, conv3.ID, created)
	}
}

func TestGetOrCreatePrivate_ReturnsMembers(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	// 创建路径与查找路径都要返回完整的成员列表
	conv, _, err := svc.GetOrCreatePrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetOrCreatePrivate failed: %v", err)
	}
	if len(conv.Members) != 2 {
		t.Fatalf("Expected 2 members on creation, got %d", len(conv.Members))
	}

	found, _, err := svc.GetOrCreatePrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Second GetOrCreatePrivate failed: %v", err)
	}
	if len(found.Members) != 2 {
		t.Fatalf("Expected 2 members on lookup, got %d", len(found.Members))
	}
	if found.FindMember(1) == nil || found.FindMember(2) == nil {
		t.Errorf("Both pair members should be present, got %+v", found.Members)
	}
}

func TestGetOrCreatePrivate_Concurrent(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	ids := make([]int64, callers)
	createdCount := make([]bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, created, err := svc.GetOrCreatePrivate(ctx, 1, 2)
			if err != nil {
				t.Errorf("Concurrent GetOrCreatePrivate failed: %v", err)
				return
			}
			ids[i] = conv.ID
			createdCount[i] = created
		}(i)
	}
	wg.Wait()

	// 所有调用收敛到同一个会话，至多一个调用真正创建
	creates := 0
	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("Caller %d got conversation %d, expected %d", i, ids[i], ids[0])
		}
	}
	for _, c := range createdCount {
		if c {
			creates++
		}
	}
	if creates > 1 {
		t.Errorf("Expected at most 1 creation, got %d", creates)
	}
}

func TestGetOrCreatePrivate_Validation(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	if _, _, err := svc.GetOrCreatePrivate(ctx, 1, 1); err == nil {
		t.Error("Expected error for self conversation")
	}

	_, _, err := svc.GetOrCreatePrivate(ctx, 1, 999)
	if !apperrors.Is(err, apperrors.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateGroup(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2, 3)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	// 除创建者外不足 2 名成员
	_, err := svc.CreateGroup(ctx, 1, "周末聚会", []int64{2}, "")
	if !apperrors.Is(err, apperrors.ErrGroupTooSmall) {
		t.Errorf("Expected ErrGroupTooSmall, got %v", err)
	}

	conv, err := svc.CreateGroup(ctx, 1, "周末聚会", []int64{2, 3}, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if len(conv.Members) != 3 {
		t.Errorf("Expected 3 members, got %d", len(conv.Members))
	}
	if !conv.IsAdmin(1) {
		t.Error("Creator should be admin")
	}
	if conv.IsAdmin(2) {
		t.Error("Invited member should not be admin")
	}
}

func TestAddMembers(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2, 3, 4)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, err := svc.CreateGroup(ctx, 1, "周末聚会", []int64{2, 3}, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	// 非管理员被拒绝
	if _, err := svc.AddMembers(ctx, 2, conv.ID, []int64{4}); !apperrors.Is(err, apperrors.ErrNotAdmin) {
		t.Errorf("Expected ErrNotAdmin, got %v", err)
	}

	// 全部已是成员
	if _, err := svc.AddMembers(ctx, 1, conv.ID, []int64{2, 3}); !apperrors.Is(err, apperrors.ErrAllMembersExist) {
		t.Errorf("Expected ErrAllMembersExist, got %v", err)
	}

	// 正常添加，新成员收到入群邀请通知
	updated, err := svc.AddMembers(ctx, 1, conv.ID, []int64{3, 4})
	if err != nil {
		t.Fatalf("AddMembers failed: %v", err)
	}
	if len(updated.Members) != 4 {
		t.Errorf("Expected 4 members, got %d", len(updated.Members))
	}

	notifications, err := db.notificationStore().ListByRecipient(ctx, 4, 10)
	if err != nil {
		t.Fatalf("ListByRecipient failed: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 notification for new member, got %d", len(notifications))
	}
	if notifications[0].Type != model.NotificationTypeGroupInvite {
		t.Errorf("Expected group_invite notification, got %s", notifications[0].Type)
	}

	// 已有成员不应产生新通知
	existing, _ := db.notificationStore().ListByRecipient(ctx, 3, 10)
	if len(existing) != 0 {
		t.Errorf("Existing member should not be notified, got %d notifications", len(existing))
	}
}

func TestRemoveMember(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2, 3)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, err := svc.CreateGroup(ctx, 1, "周末聚会", []int64{2, 3}, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	if _, err := svc.RemoveMember(ctx, 2, conv.ID, 3); !apperrors.Is(err, apperrors.ErrNotAdmin) {
		t.Errorf("Expected ErrNotAdmin, got %v", err)
	}

	if _, err := svc.RemoveMember(ctx, 1, conv.ID, 999); !apperrors.Is(err, apperrors.ErrMemberNotFound) {
		t.Errorf("Expected ErrMemberNotFound, got %v", err)
	}

	// 管理员不可被移除
	if _, err := svc.RemoveMember(ctx, 1, conv.ID, 1); !apperrors.Is(err, apperrors.ErrCannotRemoveAdmin) {
		t.Errorf("Expected ErrCannotRemoveAdmin, got %v", err)
	}

	updated, err := svc.RemoveMember(ctx, 1, conv.ID, 3)
	if err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	if len(updated.Members) != 2 {
		t.Errorf("Expected 2 members after removal, got %d", len(updated.Members))
	}
}

func TestDissolve(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2, 3)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, err := svc.CreateGroup(ctx, 1, "周末聚会", []int64{2, 3}, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: conv.ID, Content: "hello"}); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	if err := svc.Dissolve(ctx, 2, conv.ID); !apperrors.Is(err, apperrors.ErrNotAdmin) {
		t.Errorf("Expected ErrNotAdmin, got %v", err)
	}

	if err := svc.Dissolve(ctx, 1, conv.ID); err != nil {
		t.Fatalf("Dissolve failed: %v", err)
	}

	// 会话与消息一并消失，不留孤儿消息
	if _, err := svc.GetConversationDetails(ctx, conv.ID); !apperrors.Is(err, apperrors.ErrConversationNotFound) {
		t.Errorf("Expected ErrConversationNotFound, got %v", err)
	}
	count, err := db.messageStore().CountByConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("CountByConversation failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 messages after dissolve, got %d", count)
	}
}

func TestSendMessage_UpdatesPreview(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, _, err := svc.GetOrCreatePrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetOrCreatePrivate failed: %v", err)
	}

	if _, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: conv.ID, Content: "hello"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	updated, err := svc.GetConversationDetails(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversationDetails failed: %v", err)
	}
	if updated.LastMessage == nil || updated.LastMessage.Content != "hello" {
		t.Fatalf("Expected preview 'hello', got %+v", updated.LastMessage)
	}

	// 图片消息的预览使用占位文案
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.SendMessage(ctx, 1, &SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "https://img.example.com/1.png",
		Type:           model.MessageTypeImage,
	}); err != nil {
		t.Fatalf("SendMessage (image) failed: %v", err)
	}

	updated, _ = svc.GetConversationDetails(ctx, conv.ID)
	if updated.LastMessage.Content != PreviewImagePlaceholder {
		t.Errorf("Expected image placeholder preview, got %q", updated.LastMessage.Content)
	}
}

func TestSendMessage_PreviewDoesNotRegress(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, _, _ := svc.GetOrCreatePrivate(ctx, 1, 2)

	if _, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: conv.ID, Content: "最新消息"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	current, err := svc.GetConversationDetails(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversationDetails failed: %v", err)
	}
	latestAt := current.LastMessage.CreatedAt
	updatedAt := current.UpdatedAt

	// 模拟并发发送中落后提交的预览写入：时间戳早于当前缓存
	stale := &model.LastMessage{
		Content:    "迟到的旧消息",
		SenderID:   2,
		SenderName: "用户",
		Type:       model.MessageTypeText,
		CreatedAt:  latestAt.Add(-time.Second),
	}
	if err := db.conversationStore().UpdateLastMessage(ctx, conv.ID, stale); err != nil {
		t.Fatalf("Stale UpdateLastMessage failed: %v", err)
	}

	after, _ := svc.GetConversationDetails(ctx, conv.ID)
	if after.LastMessage.Content != "最新消息" {
		t.Errorf("Stale write should not regress preview, got %q", after.LastMessage.Content)
	}
	if !after.LastMessage.CreatedAt.Equal(latestAt) {
		t.Errorf("Preview timestamp should stay %v, got %v", latestAt, after.LastMessage.CreatedAt)
	}
	if after.UpdatedAt.Before(updatedAt) {
		t.Errorf("updatedAt should never move backwards: %v before %v", after.UpdatedAt, updatedAt)
	}

	// 更新的消息正常覆盖预览并前移活跃时间
	newer := &model.LastMessage{
		Content:    "更新的消息",
		SenderID:   2,
		SenderName: "用户",
		Type:       model.MessageTypeText,
		CreatedAt:  latestAt.Add(time.Second),
	}
	if err := db.conversationStore().UpdateLastMessage(ctx, conv.ID, newer); err != nil {
		t.Fatalf("Newer UpdateLastMessage failed: %v", err)
	}
	after, _ = svc.GetConversationDetails(ctx, conv.ID)
	if after.LastMessage.Content != "更新的消息" {
		t.Errorf("Newer write should replace preview, got %q", after.LastMessage.Content)
	}
	if !after.UpdatedAt.Equal(newer.CreatedAt) {
		t.Errorf("updatedAt should advance to %v, got %v", newer.CreatedAt, after.UpdatedAt)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, _, _ := svc.GetOrCreatePrivate(ctx, 1, 2)

	if _, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: conv.ID}); !apperrors.Is(err, apperrors.ErrEmptyMessage) {
		t.Errorf("Expected ErrEmptyMessage, got %v", err)
	}

	if _, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: 999, Content: "hi"}); !apperrors.Is(err, apperrors.ErrConversationNotFound) {
		t.Errorf("Expected ErrConversationNotFound, got %v", err)
	}

	// 只带附件不带文本是合法消息
	msg, err := svc.SendMessage(ctx, 1, &SendMessageRequest{
		ConversationID: conv.ID,
		Type:           model.MessageTypeFile,
		Attachments:    []model.Attachment{{URL: "https://files.example.com/a.pdf", FileName: "a.pdf"}},
	})
	if err != nil {
		t.Fatalf("SendMessage with attachment failed: %v", err)
	}
	if msg.Type != model.MessageTypeFile {
		t.Errorf("Expected type file, got %s", msg.Type)
	}
}

func TestListMessages_Pagination(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, _, _ := svc.GetOrCreatePrivate(ctx, 1, 2)

	contents := []string{"m1", "m2", "m3"}
	ids := make(map[string]int64, 3)
	for _, content := range contents {
		msg, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: conv.ID, Content: content})
		if err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
		ids[content] = msg.ID
		time.Sleep(5 * time.Millisecond) // 确保时间戳不同
	}

	// limit=2 且以 m3 为游标，应返回 [m1, m2]（正序）
	messages, err := svc.ListMessages(ctx, conv.ID, 2, ids["m3"])
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Content != "m1" || messages[1].Content != "m2" {
		t.Errorf("Expected [m1, m2], got [%s, %s]", messages[0].Content, messages[1].Content)
	}

	// 无效游标按缺失处理，返回最新 limit 条
	messages, err = svc.ListMessages(ctx, conv.ID, 2, 999999)
	if err != nil {
		t.Fatalf("ListMessages with bad cursor failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages for bad cursor, got %d", len(messages))
	}
	if messages[0].Content != "m2" || messages[1].Content != "m3" {
		t.Errorf("Expected [m2, m3], got [%s, %s]", messages[0].Content, messages[1].Content)
	}
}

func TestListMessages_BlanksUnsent(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, _, _ := svc.GetOrCreatePrivate(ctx, 1, 2)

	msg, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: conv.ID, Content: "说错话了"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if err := svc.UnsendMessage(ctx, 2, msg.ID); !apperrors.Is(err, apperrors.ErrMessageNotFound) {
		t.Errorf("Non-sender unsend should fail with ErrMessageNotFound, got %v", err)
	}
	if err := svc.UnsendMessage(ctx, 1, msg.ID); err != nil {
		t.Fatalf("UnsendMessage failed: %v", err)
	}

	messages, err := svc.ListMessages(ctx, conv.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if !messages[0].IsUnsent || messages[0].Content != "" {
		t.Errorf("Unsent message should keep flag and blank content, got %+v", messages[0])
	}
}

func TestMarkConversationRead(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, _, _ := svc.GetOrCreatePrivate(ctx, 1, 2)
	msg, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: conv.ID, Content: "hello"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if err := svc.MarkConversationRead(ctx, 999, conv.ID); !apperrors.Is(err, apperrors.ErrNotMember) {
		t.Errorf("Expected ErrNotMember, got %v", err)
	}

	if err := svc.MarkConversationRead(ctx, 2, conv.ID); err != nil {
		t.Fatalf("MarkConversationRead failed: %v", err)
	}

	stored, err := db.messageStore().FindByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if len(stored.ReadBy) != 1 || stored.ReadBy[0] != 2 {
		t.Errorf("Expected readBy=[2], got %v", stored.ReadBy)
	}

	updated, _ := svc.GetConversationDetails(ctx, conv.ID)
	if m := updated.FindMember(2); m == nil || m.LastReadAt == nil {
		t.Error("Member lastReadAt should be set after mark read")
	}

	// 重复标记不会重复追加
	if err := svc.MarkConversationRead(ctx, 2, conv.ID); err != nil {
		t.Fatalf("Second MarkConversationRead failed: %v", err)
	}
	stored, _ = db.messageStore().FindByID(ctx, msg.ID)
	if len(stored.ReadBy) != 1 {
		t.Errorf("Expected readBy to stay [2], got %v", stored.ReadBy)
	}
}

func TestGetPrivatePartner(t *testing.T) {
	db := newMemDB()
	seedUsers(db, 1, 2, 3)
	svc := newTestChatService(t, db)
	ctx := context.Background()

	conv, _, _ := svc.GetOrCreatePrivate(ctx, 1, 2)

	partner, err := svc.GetPrivatePartner(ctx, 1, conv.ID)
	if err != nil {
		t.Fatalf("GetPrivatePartner failed: %v", err)
	}
	if partner.ID != 2 {
		t.Errorf("Expected partner 2, got %d", partner.ID)
	}

	group, err := svc.CreateGroup(ctx, 1, "周末聚会", []int64{2, 3}, "")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if _, err := svc.GetPrivatePartner(ctx, 1, group.ID); !apperrors.Is(err, apperrors.ErrNotPrivate) {
		t.Errorf("Expected ErrNotPrivate for group, got %v", err)
	}
}

// 端到端场景：A 发送消息后 B 离线，B 之后通过会话列表看到预览，
// 通过通知列表拿到排队的通知
func TestOfflineRecipientScenario(t *testing.T) {
	db := newMemDB()
	db.addUser(&model.User{ID: 1, DisplayName: "小明"})
	db.addUser(&model.User{ID: 2, DisplayName: "小红"})
	svc := newTestChatService(t, db)

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("Failed to create snowflake node: %v", err)
	}
	notifSvc := NewNotificationService(db.notificationStore(), node)
	ctx := context.Background()

	conv, _, err := svc.GetOrCreatePrivate(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetOrCreatePrivate failed: %v", err)
	}

	msg, err := svc.SendMessage(ctx, 1, &SendMessageRequest{ConversationID: conv.ID, Content: "hello"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	sender, _ := db.userStore().FindByID(ctx, 1)
	if _, err := notifSvc.NotifyMessage(ctx, sender, 2, conv.ID, msg.Content); err != nil {
		t.Fatalf("NotifyMessage failed: %v", err)
	}

	// B 的会话列表能看到预览
	conversations, err := svc.GetConversations(ctx, 2)
	if err != nil {
		t.Fatalf("GetConversations failed: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("Expected 1 conversation for B, got %d", len(conversations))
	}
	if conversations[0].LastMessage == nil || conversations[0].LastMessage.Content != "hello" {
		t.Fatalf("Expected preview 'hello', got %+v", conversations[0].LastMessage)
	}

	// B 的通知列表能取到排队的通知
	notifications, err := notifSvc.List(ctx, 2)
	if err != nil {
		t.Fatalf("List notifications failed: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("Expected 1 notification for B, got %d", len(notifications))
	}
	if notifications[0].Type != model.NotificationTypeMessage {
		t.Errorf("Expected message notification, got %s", notifications[0].Type)
	}
}
