package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-exchange-backend/internal/goroutine"
	"github.com/ignatzorin/p2p-exchange-backend/internal/models"
	"github.com/ignatzorin/p2p-exchange-backend/internal/validation"
)

// MessageRepositoryContract описывает хранилище сообщений чата сделки.
type MessageRepositoryContract interface {
	Add(ctx context.Context, message *models.Message) error
	ListByTrade(ctx context.Context, tradeID uuid.UUID, limit, offset int) ([]models.Message, error)
	ListSince(ctx context.Context, tradeID uuid.UUID, sinceSeq int64, limit int) ([]models.Message, error)
}

// TradeReader выдаёт сделки для проверки доступа к чату.
type TradeReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Trade, error)
}

// RoomBroadcaster рассылает события в комнату сделки.
type RoomBroadcaster interface {
	BroadcastToTrade(tradeID uuid.UUID, event string, data any) error
}

// MessageSink получает уведомление о новом сообщении для второй стороны.
type MessageSink interface {
	MessagePosted(trade *models.Trade, message *models.Message)
}

// TradeRoomService содержит бизнес-логику чата сделки. Чат привязан
// к сделке на всём её пути, включая спор; после завершения или отмены
// журнал доступен только для чтения.
type TradeRoomService struct {
	messages MessageRepositoryContract
	trades   TradeReader
	hub      RoomBroadcaster
	sink     MessageSink
}

// NewTradeRoomService создаёт сервис чата сделок.
func NewTradeRoomService(messages MessageRepositoryContract, trades TradeReader) *TradeRoomService {
	return &TradeRoomService{
		messages: messages,
		trades:   trades,
	}
}

// SetHub устанавливает рассыльщик комнат.
func (s *TradeRoomService) SetHub(hub RoomBroadcaster) {
	s.hub = hub
}

// SetMessageSink устанавливает получателя уведомлений о сообщениях.
func (s *TradeRoomService) SetMessageSink(sink MessageSink) {
	s.sink = sink
}

// SendMessage добавляет сообщение участника в чат сделки.
func (s *TradeRoomService) SendMessage(ctx context.Context, tradeID, senderID uuid.UUID, content string, attachmentID *uuid.UUID, isArbiter bool) (*models.Message, error) {
	if err := validation.ValidateMessageContent(content); err != nil {
		return nil, fmt.Errorf("trade room service: %w", err)
	}

	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}

	if !trade.Participant(senderID) {
		// Арбитр может писать в чат только пока сделка в споре.
		if !isArbiter || trade.Status != models.TradeStatusDisputed {
			return nil, fmt.Errorf("trade room service: у вас нет доступа к этому чату")
		}
	}

	if models.IsTerminalTradeStatus(trade.Status) {
		return nil, fmt.Errorf("trade room service: чат закрыт, сделка завершена")
	}

	message := &models.Message{
		TradeID:           tradeID,
		SenderID:          &senderID,
		Kind:              models.MessageKindChat,
		Content:           content,
		AttachmentMediaID: attachmentID,
	}

	if err := s.messages.Add(ctx, message); err != nil {
		return nil, err
	}

	s.broadcast(trade, message)
	return message, nil
}

// AddSystemMessage пишет системное сообщение (реквизиты, квитанция,
// итог сделки). Отправителя у таких сообщений нет.
func (s *TradeRoomService) AddSystemMessage(ctx context.Context, tradeID uuid.UUID, kind, content string, attachmentID *uuid.UUID) (*models.Message, error) {
	message := &models.Message{
		TradeID:           tradeID,
		Kind:              kind,
		Content:           content,
		AttachmentMediaID: attachmentID,
	}

	if err := s.messages.Add(ctx, message); err != nil {
		return nil, err
	}

	if s.hub != nil {
		_ = s.hub.BroadcastToTrade(tradeID, "trade_room.message", message)
	}

	return message, nil
}

// ListMessages возвращает журнал чата участнику или арбитру.
func (s *TradeRoomService) ListMessages(ctx context.Context, tradeID, userID uuid.UUID, isArbiter bool, limit, offset int) ([]models.Message, error) {
	if _, err := s.authorizeRead(ctx, tradeID, userID, isArbiter); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return s.messages.ListByTrade(ctx, tradeID, limit, offset)
}

// ListMessagesSince возвращает сообщения после курсора seq. Используется
// при переподключении к комнате, чтобы догнать пропущенное.
func (s *TradeRoomService) ListMessagesSince(ctx context.Context, tradeID, userID uuid.UUID, isArbiter bool, sinceSeq int64, limit int) ([]models.Message, error) {
	if _, err := s.authorizeRead(ctx, tradeID, userID, isArbiter); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 500 {
		limit = 200
	}

	return s.messages.ListSince(ctx, tradeID, sinceSeq, limit)
}

// AuthorizeRoom проверяет право пользователя на подписку на комнату сделки.
func (s *TradeRoomService) AuthorizeRoom(ctx context.Context, tradeID, userID uuid.UUID, isArbiter bool) (*models.Trade, error) {
	return s.authorizeRead(ctx, tradeID, userID, isArbiter)
}

func (s *TradeRoomService) authorizeRead(ctx context.Context, tradeID, userID uuid.UUID, isArbiter bool) (*models.Trade, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if !trade.Participant(userID) && !isArbiter {
		return nil, fmt.Errorf("trade room service: у вас нет доступа к этому чату")
	}
	return trade, nil
}

func (s *TradeRoomService) broadcast(trade *models.Trade, message *models.Message) {
	if s.hub != nil {
		_ = s.hub.BroadcastToTrade(trade.ID, "trade_room.message", message)
	}

	if s.sink != nil {
		t, m := *trade, *message
		goroutine.SafeGo(func() {
			s.sink.MessagePosted(&t, &m)
		})
	}
}
