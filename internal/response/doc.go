// Package response correlates sent packets with the packets that answer
// them.
//
// Each sent packet gets a Handle seeded with the response types the packet
// declares, plus any added through Expect/ExpectFrom options. The receive
// loop offers every incoming packet to the connection's Tracker, which hands
// it to the first outstanding handle that still expects it. A handle is
// signaled once all of its expectations are matched; callers block on it
// with Await.
//
// Handles cannot be cancelled. A caller that stops waiting leaves its handle
// outstanding, and a late response is still consumed by it rather than
// offered to a newer handle.
package response
