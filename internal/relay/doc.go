// Package relay controls room power relays over MQTT.
//
// Each room has a relay controller listening on
// roomgate/relay/{roomID}/set and answering on
// roomgate/relay/{roomID}/ack. Commands carry a generated command ID;
// acknowledgements echo it back, which lets concurrent commands to the
// same room resolve independently. A missing acknowledgement within
// the configured timeout is a failure, indistinguishable from a relay
// that refused the command.
package relay
