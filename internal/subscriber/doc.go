// Package subscriber keeps one MQTT subscription alive and feeds distinct
// notifications to a Forwarder.
//
// Manager runs a single session through the states
//
//	Disconnected -> Connecting -> Subscribed -> ReconnectPending
//
// and Service loops it forever with a fixed ReconnectDelay. A session ends on
// connect or subscribe failure, on a transport error, when the event stream
// ends, or when the broker stays silent longer than the inactivity timeout.
// Payloads that fail to decode are logged and dropped; they never end a session.
package subscriber
