// Package hub manages the TCP control channel to a LIFX hub.
//
// A Conn owns one stream. Connect dials it, starts a receive loop and
// broadcasts a GetLightState so that attached devices report in. Every
// frame read from the stream is parsed with the packet registry, published
// as an event, offered to the outstanding response handles and folded into
// the per-hub device registry.
//
// # Sending
//
// Send stamps the hub site on a packet and writes it; SendRaw writes it
// as-is. Both return a response.Handle that is tracked before the frame
// hits the wire, so a fast reply cannot be missed. Request combines Send
// with Handle.Await.
//
// # Lifecycle
//
// The connection is terminal: when the stream ends, whether by Close, EOF
// or an I/O error, every outstanding handle fails with ErrConnectionClosed
// and a HubDisconnected event is published. Reconnecting means creating a
// new Conn.
package hub
