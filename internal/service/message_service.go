package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tiger-life/internal/models"
	"tiger-life/internal/realtime"
	"tiger-life/internal/store"
	"tiger-life/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageService stores direct messages between members
type MessageService struct {
	store  MessageStore
	feed   ChangeFeed
	logger *zap.Logger
}

// NewMessageService creates a new message service. feed may be nil, in which
// case conversations cannot be followed live.
func NewMessageService(store MessageStore, feed ChangeFeed) *MessageService {
	return &MessageService{
		store:  store,
		feed:   feed,
		logger: util.ComponentLogger("messages"),
	}
}

// Send stores a message from the caller and announces it. The receiver's
// notification is created by whoever consumes the announcement.
func (s *MessageService) Send(ctx context.Context, sess Session, receiverID uuid.UUID, content string) (*models.Message, error) {
	ctx, span := util.StartSpan(ctx, "MessageService.Send")
	defer span.End()

	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationError("Message cannot be empty")
	}
	if receiverID == uuid.Nil {
		return nil, validationError("Missing receiver")
	}
	if receiverID == sess.UserID {
		return nil, validationError("You cannot message yourself")
	}

	msg := &models.Message{
		ID:         uuid.New(),
		SenderID:   sess.UserID,
		ReceiverID: receiverID,
		Content:    content,
	}
	announce, err := models.NewOutboxMessage(&models.MessageSentEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeMessageSent),
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
	})
	if err != nil {
		s.logger.Error("Failed to encode message event",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
	}
	if err := s.store.CreateMessage(ctx, msg, announce); err != nil {
		util.FailSpan(span, err)
		return nil, backendError("Failed to send message", err)
	}
	return msg, nil
}

// Conversation returns the caller's messages with another member, oldest first
func (s *MessageService) Conversation(ctx context.Context, sess Session, otherID uuid.UUID) ([]models.Message, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	messages, err := s.store.ListConversation(ctx, sess.UserID, otherID)
	if err != nil {
		return nil, backendError("Failed to load conversation", err)
	}
	return messages, nil
}

// Partners returns everyone the caller has a conversation with
func (s *MessageService) Partners(ctx context.Context, sess Session) ([]models.User, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	users, err := s.store.ListConversationPartners(ctx, sess.UserID)
	if err != nil {
		return nil, backendError("Failed to load conversations", err)
	}
	return users, nil
}

// Subscribe streams messages exchanged between the caller and otherID from
// now on, in either direction. The channel is closed when ctx ends.
func (s *MessageService) Subscribe(ctx context.Context, sess Session, otherID uuid.UUID) (<-chan models.Message, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	if otherID == uuid.Nil || otherID == sess.UserID {
		return nil, validationError("Invalid conversation")
	}
	if s.feed == nil {
		return nil, &Error{Kind: KindBackend, Message: "Live conversations are unavailable"}
	}

	me, other := sess.UserID.String(), otherID.String()
	sub := s.feed.Subscribe(ctx, realtime.Filter{
		Table: "messages",
		Ops:   []realtime.Op{realtime.OpInsert},
		Where: func(c realtime.Change) bool {
			from, to := c.Field("sender_id"), c.Field("receiver_id")
			return (from == me && to == other) || (from == other && to == me)
		},
	})

	out := make(chan models.Message)
	go func() {
		defer close(out)
		defer sub.Close()

		var last time.Time
		delivered := make(map[uuid.UUID]struct{})
		deliver := func(msg models.Message) bool {
			if _, ok := delivered[msg.ID]; ok {
				return true
			}
			select {
			case out <- msg:
				delivered[msg.ID] = struct{}{}
				if msg.SentAt.After(last) {
					last = msg.SentAt
				}
				return true
			case <-ctx.Done():
				return false
			}
		}

		for change := range sub.Changes() {
			id, err := uuid.Parse(change.Field("id"))
			if err != nil {
				s.logger.Warn("Message change without id", zap.String("id", change.Field("id")))
				continue
			}
			msg, err := s.store.GetMessage(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				s.logger.Error("Failed to load pushed message", zap.String("message_id", id.String()), zap.Error(err))
				continue
			}
			if !deliver(*msg) {
				return
			}

			if sub.TakeMissed() > 0 {
				if !s.catchUp(ctx, sess.UserID, otherID, last, deliver) {
					return
				}
			}
		}
	}()

	return out, nil
}

// catchUp reloads the conversation after dropped changes and delivers what
// was sent after the last delivered message
func (s *MessageService) catchUp(ctx context.Context, userID, otherID uuid.UUID, after time.Time, deliver func(models.Message) bool) bool {
	messages, err := s.store.ListConversation(ctx, userID, otherID)
	if err != nil {
		s.logger.Error("Failed to reload conversation", zap.Error(err))
		return ctx.Err() == nil
	}
	for i := range messages {
		if !messages[i].SentAt.After(after) {
			continue
		}
		if !deliver(messages[i]) {
			return false
		}
	}
	return true
}
