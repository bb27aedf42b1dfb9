// Package bridge exposes hub events and bulb commands over WebSocket.
//
// Every event published to a Server is encoded as JSON and queued to all
// connected clients:
//
//	{"event":"device_updated","hub":"192.168.1.20:56700","device":{...}}
//
// Clients send Command objects and receive a Reply for each:
//
//	{"id":"1","op":"power","device":"d0:73:d5:10:20:30","state":"on"}
//	{"id":"1","ok":true}
//
// Publish never blocks. Each client has a bounded queue and is
// disconnected when it falls behind, so a slow browser cannot stall a hub
// receive loop. GET /devices returns the device snapshot of every hub.
package bridge
