package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/oakline/roomgate-core/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestNilClientIsNoOp(t *testing.T) {
	var c *Client

	if c.IsConnected() {
		t.Error("IsConnected() on nil client = true, want false")
	}

	// All write helpers must be safe no-ops on a nil client.
	c.WritePowerOffMetric("task-1", "room-201", 1, 10.0, true)
	c.WriteDispatchMetric(3, 3, 25.0)
	c.WriteAccessMetric("room-201", false, "too_early")
	c.WritePoint("custom", nil, map[string]interface{}{"x": 1})
	c.Flush()

	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{connected: false}

	err := c.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNeverConnected(t *testing.T) {
	c := &Client{}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
