// Package ws streams the live network snapshot to browser clients over
// WebSocket (gorilla/websocket). Every store change is pushed as a
// {"event":"snapshot"} message; other producers, such as full-test progress,
// publish their own events through Hub.Publish.
package ws
