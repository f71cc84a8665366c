package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
	"github.com/oakline/roomgate-core/internal/infrastructure/mqtt"
)

// Controller switches a room's power relay.
type Controller interface {
	SetPower(ctx context.Context, roomID string, on bool) error
}

// commandBus is the MQTT capability the controller depends on.
type commandBus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// command is the wire format on roomgate/relay/{roomID}/set.
type command struct {
	CommandID   string `json:"command_id"`
	Power       string `json:"power"` // "on" or "off"
	RequestedAt string `json:"requested_at"`
}

// ack is the wire format on roomgate/relay/{roomID}/ack.
type ack struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// MQTTController implements Controller over the MQTT command/ack pair.
//
// Thread Safety: safe for concurrent use; each in-flight command has
// its own ack channel keyed by command ID.
type MQTTController struct {
	bus        commandBus
	ackTimeout time.Duration
	logger     *logging.Logger

	pending map[string]chan ack
	mu      sync.Mutex
}

// NewMQTTController creates a controller. Call Start before SetPower.
func NewMQTTController(bus commandBus, ackTimeout time.Duration, logger *logging.Logger) *MQTTController {
	return &MQTTController{
		bus:        bus,
		ackTimeout: ackTimeout,
		logger:     logger,
		pending:    make(map[string]chan ack),
	}
}

// Start subscribes to acknowledgements from every relay.
func (c *MQTTController) Start() error {
	topic := mqtt.Topics{}.AllRelayAcks()
	if err := c.bus.Subscribe(topic, 1, c.handleAck); err != nil {
		return fmt.Errorf("subscribing to relay acks: %w", err)
	}
	return nil
}

// SetPower publishes a power command to roomID's relay and waits for
// the matching acknowledgement.
//
// Returns ErrAckTimeout when no ack arrives within the configured
// timeout, ErrCommandRejected when the relay reports failure, or the
// context error if ctx ends first.
func (c *MQTTController) SetPower(ctx context.Context, roomID string, on bool) error {
	power := "off"
	if on {
		power = "on"
	}

	cmd := command{
		CommandID:   "cmd-" + uuid.NewString()[:8],
		Power:       power,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshalling relay command: %w", err)
	}

	ackCh := make(chan ack, 1)
	c.mu.Lock()
	c.pending[cmd.CommandID] = ackCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, cmd.CommandID)
		c.mu.Unlock()
	}()

	topic := mqtt.Topics{}.RelayCommand(roomID)
	if err := c.bus.Publish(topic, payload, 1, false); err != nil {
		return fmt.Errorf("publishing relay command for room %s: %w", roomID, err)
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()

	select {
	case a := <-ackCh:
		if !a.Success {
			return fmt.Errorf("%w: room %s: %s", ErrCommandRejected, roomID, a.Error)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: room %s after %v", ErrAckTimeout, roomID, c.ackTimeout)
	case <-ctx.Done():
		return fmt.Errorf("relay command for room %s: %w", roomID, ctx.Err())
	}
}

// handleAck routes an acknowledgement to the goroutine waiting on its
// command ID. Acks for unknown commands (late, duplicate, or another
// instance's) are dropped.
func (c *MQTTController) handleAck(topic string, payload []byte) error {
	var a ack
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrInvalidAck, topic, err)
	}
	if a.CommandID == "" {
		return fmt.Errorf("%w: topic %s: missing command_id", ErrInvalidAck, topic)
	}

	c.mu.Lock()
	ch, ok := c.pending[a.CommandID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dropping ack for unknown command",
			"command_id", a.CommandID,
			"room_id", roomIDFromAckTopic(topic),
		)
		return nil
	}

	select {
	case ch <- a:
	default:
	}
	return nil
}

// roomIDFromAckTopic extracts the room ID from roomgate/relay/{roomID}/ack.
// Returns an empty string for unexpected topics; used for logging only.
func roomIDFromAckTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return ""
	}
	return parts[2]
}
