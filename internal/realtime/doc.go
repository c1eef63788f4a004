// Package realtime is a thin client for the OpenAI Realtime WebSocket API.
//
// A Session owns one socket. A single goroutine reads server events and
// delivers them, in the order they arrived, on the channel returned by
// Events. Delivery blocks, so a slow consumer slows the socket reader down
// instead of growing a buffer. Client events are written with Send.
//
// The wire protocol belongs to the server; this package only knows the
// handful of event types the rest of talkback reacts to.
package realtime
