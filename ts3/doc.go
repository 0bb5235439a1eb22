// Package ts3 implements a client for the TeamSpeak 3 ServerQuery protocol,
// the line-oriented administrative interface exposed by TeamSpeak servers.
//
// The primary lifecycle is:
//   - construct a Connection with NewConnection
//   - Connect to a transport URI (telnet://, tcps:// or ssh://)
//   - Login with query credentials (raw transports only)
//   - execute commands and register for server notifications
//   - Quit or Close when finished
//
// A single background goroutine drains the connection and splits the stream
// into command replies and asynchronous notifications. Execute is safe for
// concurrent use; callers are served strictly in submission order because
// the protocol carries no request identifiers. Notification handlers run on
// the receive goroutine, so a slow handler delays subsequent lines.
//
// Errors are reported as typed errors created with NewError and may wrap
// transport, protocol, command, or disconnect causes. Server-rejected
// commands surface as *QueryError from the convenience wrappers.
//
// Integration tests are environment-gated and use the variables read by
// OptionsFromEnv: TS3_URI, TS3_USERNAME, TS3_PASSWORD,
// TS3_KEEPALIVE_INTERVAL, and TS3_DIAL_TIMEOUT.
package ts3
