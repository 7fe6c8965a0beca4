package runtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"messaging-core/contract"
	"messaging-core/domain"
	"messaging-core/errors"
	"messaging-core/moderation"
	"messaging-core/observability"
)

// Dispatcher parses inbound frames, validates their shape and routes them
// to an operation handler. Every failure path ends as an error frame to the
// offending connection or a log entry; nothing propagates to the session
// lifecycle controller, so one bad frame can never tear down a connection.
type Dispatcher struct {
	log       *slog.Logger
	registry  contract.IRegistry
	messages  contract.IMessageStore
	directory contract.IConversationDirectory
	presence  contract.IPresenceStore
	filter    *moderation.Filter
	stats     *observability.GatewayStats
	validate  *validator.Validate
}

func NewDispatcher(
	log *slog.Logger,
	registry contract.IRegistry,
	messages contract.IMessageStore,
	directory contract.IConversationDirectory,
	presence contract.IPresenceStore,
	filter *moderation.Filter,
	stats *observability.GatewayStats,
) *Dispatcher {
	return &Dispatcher{
		log:       log,
		registry:  registry,
		messages:  messages,
		directory: directory,
		presence:  presence,
		filter:    filter,
		stats:     stats,
		validate:  validator.New(),
	}
}

// Handle processes one raw frame for an authenticated connection. Frames
// from the same connection are handled strictly in arrival order because
// the transport read loop calls Handle synchronously.
func (d *Dispatcher) Handle(ctx context.Context, conn contract.Conn, raw []byte, identity domain.Identity) {
	var frame domain.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		d.stats.AddFrameRejected()
		d.sendError(ctx, conn, domain.CodeInvalidFrame, "frame is not well-formed JSON with a type field")
		return
	}

	frameType, ok := domain.ResolveInboundType(frame.Type)
	if !ok {
		d.stats.AddFrameRejected()
		d.sendError(ctx, conn, domain.CodeUnknownType, fmt.Sprintf("unknown frame type %q", frame.Type))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Panic while handling frame", "type", frameType, "panic", r)
			d.sendError(ctx, conn, domain.CodeInternalError, "internal error")
		}
	}()

	var err error
	switch frameType {
	case domain.FrameMessageSend:
		err = d.handleSend(ctx, frame.Data, identity)
	case domain.FrameMessageRead:
		err = d.handleRead(ctx, frame.Data, identity)
	case domain.FrameTypingStart:
		err = d.handleTyping(ctx, frame.Data, identity, true)
	case domain.FrameTypingStop:
		err = d.handleTyping(ctx, frame.Data, identity, false)
	case domain.FramePresenceHeartbeat:
		err = d.handleHeartbeat(ctx, conn, identity)
	}

	switch {
	case err == nil:
		d.stats.AddFrameDispatched()
	case stderrors.Is(err, errors.ErrValidation):
		d.stats.AddFrameRejected()
		d.sendError(ctx, conn, domain.CodeValidation, err.Error())
	default:
		d.log.Error("Frame handling failed", "type", frameType, "user_id", identity.UserID, "error", err)
		d.sendError(ctx, conn, domain.CodeInternalError, "internal error")
	}
}

// handleSend persists the message, clears the sender's typing indicator and
// fans the formatted message out to every participant. The sender is
// included on purpose: clients rely on the echo as delivery confirmation.
func (d *Dispatcher) handleSend(ctx context.Context, data json.RawMessage, identity domain.Identity) error {
	var payload domain.SendMessagePayload
	if err := d.decode(data, &payload); err != nil {
		return err
	}

	conversation, err := d.directory.GetByRef(ctx, payload.ConversationUUID)
	if err != nil {
		return classifyLookup(err)
	}

	if d.filter != nil {
		payload.Body = d.filter.Apply(payload.Body)
	}

	message, err := d.messages.SendMessage(ctx, identity, payload)
	if err != nil {
		return fmt.Errorf("message store: %w", err)
	}

	// Sending a message supersedes any typing indicator; a failure here is
	// cosmetic and must not fail the send.
	if err := d.presence.ClearTyping(ctx, identity.UserID, conversation.ID); err != nil {
		d.log.Warn("Failed to clear typing state after send", "user_id", identity.UserID, "error", err)
	}

	participants, err := d.directory.GetParticipants(ctx, conversation.ID)
	if err != nil {
		return fmt.Errorf("participants lookup: %w", err)
	}

	return d.broadcast(ctx, domain.NewOutbound(domain.FrameMessageNew, message), participantIDs(participants), nil)
}

// handleRead marks the conversation read and notifies the other
// participants; the reader already knows.
func (d *Dispatcher) handleRead(ctx context.Context, data json.RawMessage, identity domain.Identity) error {
	var payload domain.ReadPayload
	if err := d.decode(data, &payload); err != nil {
		return err
	}

	conversation, err := d.directory.GetByRef(ctx, payload.ConversationUUID)
	if err != nil {
		return classifyLookup(err)
	}

	count, err := d.messages.MarkConversationRead(ctx, payload.ConversationUUID, identity.UserID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	participants, err := d.directory.GetParticipants(ctx, conversation.ID)
	if err != nil {
		return fmt.Errorf("participants lookup: %w", err)
	}

	receipt := domain.NewOutbound(domain.FrameReadReceipt, domain.ReadReceiptPayload{
		ConversationUUID: payload.ConversationUUID,
		UserID:           identity.UserID,
		ReadCount:        count,
	})
	return d.broadcast(ctx, receipt, participantIDs(participants), &identity.UserID)
}

// handleTyping updates ephemeral typing state and tells the listed
// participants, excluding the actor.
func (d *Dispatcher) handleTyping(ctx context.Context, data json.RawMessage, identity domain.Identity, isTyping bool) error {
	var payload domain.TypingPayload
	if err := d.decode(data, &payload); err != nil {
		return err
	}

	if isTyping {
		err := d.presence.SetTyping(ctx, identity.UserID, payload.ConversationID)
		if err != nil {
			return fmt.Errorf("set typing: %w", err)
		}
	} else {
		err := d.presence.ClearTyping(ctx, identity.UserID, payload.ConversationID)
		if err != nil {
			return fmt.Errorf("clear typing: %w", err)
		}
	}

	indicator := domain.NewOutbound(domain.FrameTypingIndicator, domain.TypingIndicatorPayload{
		ConversationID: payload.ConversationID,
		UserID:         identity.UserID,
		IsTyping:       isTyping,
	})
	return d.broadcast(ctx, indicator, payload.ParticipantIDs, &identity.UserID)
}

// handleHeartbeat refreshes the caller's online status and acks directly
// to the calling connection; heartbeats are never broadcast.
func (d *Dispatcher) handleHeartbeat(ctx context.Context, conn contract.Conn, identity domain.Identity) error {
	if err := d.presence.SetOnline(ctx, identity.UserID, identity.TenantID); err != nil {
		return fmt.Errorf("refresh online state: %w", err)
	}

	ack := domain.NewOutbound(domain.FrameHeartbeatAck, domain.HeartbeatAckPayload{Status: "ok"})
	return d.reply(ctx, conn, ack)
}

// decode unmarshals and validates a typed payload. Both failure modes are
// the client's fault and map to a VALIDATION error frame.
func (d *Dispatcher) decode(data json.RawMessage, payload any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data object", errors.ErrValidation)
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("%w: malformed data object", errors.ErrValidation)
	}
	if err := d.validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}

func (d *Dispatcher) broadcast(ctx context.Context, frame domain.OutboundFrame, participants []int64, exclude *int64) error {
	encoded, err := frame.Encode()
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frame.Type, err)
	}
	d.registry.Broadcast(ctx, participants, encoded, exclude)
	return nil
}

func (d *Dispatcher) reply(ctx context.Context, conn contract.Conn, frame domain.OutboundFrame) error {
	encoded, err := frame.Encode()
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frame.Type, err)
	}
	return conn.Send(ctx, encoded)
}

func (d *Dispatcher) sendError(ctx context.Context, conn contract.Conn, code, message string) {
	encoded, err := domain.NewErrorFrame(code, message).Encode()
	if err != nil {
		d.log.Error("Failed to encode error frame", "code", code, "error", err)
		return
	}
	if err := conn.Send(ctx, encoded); err != nil {
		d.log.Warn("Failed to deliver error frame", "code", code, "error", err)
	}
}

// classifyLookup turns a missing conversation into a client-visible
// validation failure; anything else is a collaborator fault.
func classifyLookup(err error) error {
	if stderrors.Is(err, errors.ErrConversationNotFound) {
		return fmt.Errorf("%w: unknown conversation", errors.ErrValidation)
	}
	return fmt.Errorf("conversation lookup: %w", err)
}

func participantIDs(participants []domain.Participant) []int64 {
	return lo.Map(participants, func(p domain.Participant, _ int) int64 {
		return p.UserID
	})
}
