package syncsign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/mqtt"
)

// handleCommand processes a message on graylogic/command/syncsign/{entity}.
// Parsing happens inline; the vendor call runs on its own goroutine so the
// MQTT client's delivery loop is never held by a slow render.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	category, protocol, topicID, ok := mqtt.ParseBridgeTopic(topic)
	if !ok || category != "command" || protocol != Protocol {
		return fmt.Errorf("unexpected command topic %q", topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(NewAckError(cmd, topicID, ErrCodeInvalidCommand, "malformed command payload"))
		return fmt.Errorf("parsing command: %w", err)
	}
	b.commandsReceived.Add(1)

	entityID := cmd.EntityID
	if entityID == "" {
		entityID = topicID
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"entity_id", entityID,
		"command", cmd.Command,
		"source", cmd.Source)

	if entityID != topicID {
		b.publishAck(NewAckError(cmd, entityID, ErrCodeInvalidParameters,
			fmt.Sprintf("entity_id %s does not match topic %s", entityID, topicID)))
		return nil
	}
	if cmd.Command != CommandUpdateDisplay {
		b.publishAck(NewAckError(cmd, entityID, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", cmd.Command)))
		return nil
	}
	contents, ok := cmd.Parameters.ContentsText()
	if !ok {
		b.publishAck(NewAckError(cmd, entityID, ErrCodeInvalidParameters, "contents is required"))
		return nil
	}

	b.cmdMu.Lock()
	defer b.cmdMu.Unlock()
	if b.stopping {
		b.publishAck(NewAckError(cmd, entityID, ErrCodeNotReady, "bridge is stopping"))
		return ErrBridgeStopped
	}
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.executeUpdateDisplay(cmd, entityID, contents)
	}()
	return nil
}

func (b *Bridge) executeUpdateDisplay(cmd CommandMessage, entityID, contents string) {
	err := b.UpdateDisplay(b.ctx, entityID, contents)
	if err == nil {
		b.publishAck(NewAckMessage(cmd, entityID))
		return
	}
	b.publishAck(NewAckError(cmd, entityID, ackCode(err), err.Error()))
}

// ackCode maps a display update error to an ack error code.
func ackCode(err error) string {
	switch {
	case errors.Is(err, fleet.ErrUnknownAsset):
		return ErrCodeNotConfigured
	case errors.Is(err, fleet.ErrNotDisplay):
		return ErrCodeNotDisplay
	case errors.Is(err, fleet.ErrNotReady):
		return ErrCodeNotReady
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeDispatchFailed
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	if ack.EntityID == "" {
		return
	}
	b.publishJSON(b.topics.BridgeAck(Protocol, ack.EntityID), ack, false)
}
