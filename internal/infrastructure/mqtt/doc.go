// Package mqtt provides MQTT client connectivity for Roomgate Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Roomgate uses MQTT as the message bus between the core and the room
// relay controllers, and to receive booking lifecycle events from the
// booking platform. The broker decouples the core from relay firmware
// and from the booking system's release cadence.
//
//	Roomgate Core ↔ MQTT Broker ↔ Room Relays / Booking Platform
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all relay acknowledgements
//	err = client.Subscribe(mqtt.Topics{}.AllRelayAcks(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a relay command
//	topic := mqtt.Topics{}.RelayCommand("room-201")
//	client.Publish(topic, []byte(`{"power":"off"}`), 1, false)
package mqtt
