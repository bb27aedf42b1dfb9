// Package discovery finds LIFX hubs on the local network.
//
// A Listener owns one UDP socket on port 56700 and runs two goroutines on
// it: a broadcaster that sends GetService to the broadcast address every
// interval until StopDiscovery or Close, and a receive loop that handles
// everything arriving on the socket.
//
// # Discovery Process
//
//  1. The broadcaster sends an empty GetService packet
//  2. Hubs answer with StateService carrying their TCP control port
//  3. Replies advertising port 0 are ignored; the hub is not ready yet
//  4. The first reply from a (source address, port) pair creates a
//     hub.Conn in the Hubs registry and publishes HubDiscovered
//  5. Any other known packet type is published as BroadcastPacket, since
//     some devices also send status over the broadcast channel
//
// Hubs are not connected automatically; callers connect them when they
// see HubDiscovered or by walking Hubs().All().
//
// # mDNS
//
// Networks that filter broadcast often still pass multicast DNS. Scanner
// browses for LIFX HomeKit adverts and the resulting addresses can be
// probed with Listener.Probe.
//
// # Network Requirements
//
// - UDP port 56700 must be free and broadcast must be allowed outbound
// - Hubs must be on the same network segment as the broadcast address
package discovery
