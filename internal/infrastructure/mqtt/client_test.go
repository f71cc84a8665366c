package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/oakline/roomgate-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "roomgate-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// bareClient returns a client that has never connected, for exercising
// input validation paths that run before any broker interaction.
func bareClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

// =============================================================================
// Option Building Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "roomgate"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("Servers count = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "roomgate-test" {
		t.Errorf("ClientID = %q, want roomgate-test", opts.ClientID)
	}
	if opts.Username != "roomgate" {
		t.Errorf("Username = %q, want roomgate", opts.Username)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig is nil, want configured")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("MinVersion = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "roomgate-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "roomgate/system/status" {
		t.Errorf("WillTopic = %q, want roomgate/system/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	payload := string(opts.WillPayload)
	if !strings.Contains(payload, `"status":"offline"`) {
		t.Errorf("WillPayload missing offline status: %s", payload)
	}
	if !strings.Contains(payload, `"reason":"unexpected_disconnect"`) {
		t.Errorf("WillPayload missing disconnect reason: %s", payload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("roomgate-test")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload = %s", online)
	}
	if !strings.Contains(online, `"client_id":"roomgate-test"`) {
		t.Errorf("online payload missing client_id: %s", online)
	}

	offline := buildOfflinePayload("roomgate-test")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", offline)
	}
}

// =============================================================================
// Input Validation Tests
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	c := bareClient()

	err := c.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	c := bareClient()

	err := c.Publish("test/topic", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeEmptyTopic(t *testing.T) {
	c := bareClient()

	err := c.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	c := bareClient()

	err := c.Subscribe("test/topic", 3, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	c := bareClient()

	err := c.Subscribe("test/topic", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	c := bareClient()

	err := c.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestCloseNeverConnected(t *testing.T) {
	c := bareClient()

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := bareClient()

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if c.HasSubscription("roomgate/relay/room-201/ack") {
		t.Error("HasSubscription() = true, want false")
	}
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "RelayCommand",
			builder: func() string {
				return Topics{}.RelayCommand("room-201")
			},
			expected: "roomgate/relay/room-201/set",
		},
		{
			name: "RelayAck",
			builder: func() string {
				return Topics{}.RelayAck("room-201")
			},
			expected: "roomgate/relay/room-201/ack",
		},
		{
			name: "RelayStatus",
			builder: func() string {
				return Topics{}.RelayStatus("room-201")
			},
			expected: "roomgate/relay/room-201/status",
		},
		{
			name: "BookingEvent",
			builder: func() string {
				return Topics{}.BookingEvent("bkg-7f3a21")
			},
			expected: "roomgate/booking/bkg-7f3a21/event",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "roomgate/system/status",
		},
		{
			name: "AllRelayAcks",
			builder: func() string {
				return Topics{}.AllRelayAcks()
			},
			expected: "roomgate/relay/+/ack",
		},
		{
			name: "AllRelayStatus",
			builder: func() string {
				return Topics{}.AllRelayStatus()
			},
			expected: "roomgate/relay/+/status",
		},
		{
			name: "AllBookingEvents",
			builder: func() string {
				return Topics{}.AllBookingEvents()
			},
			expected: "roomgate/booking/+/event",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "roomgate/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder(); got != tt.expected {
				t.Errorf("topic = %q, want %q", got, tt.expected)
			}
		})
	}
}
