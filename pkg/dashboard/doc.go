// Package dashboard streams the server's state to WebSocket clients.
//
// A client connecting to the Handler receives one JSON message per line of
// activity:
//
//	{"type":"expectations","version":3,"cause":"API","expectations":[...]}
//	{"type":"request","request":{...}}
//	{"type":"log","log":{"time":"...","level":"INFO","message":"..."}}
//
// The first message is always the current expectation set, followed by the
// most recent requests. Expectation updates are coalesced, so a slow client
// sees the latest set rather than every intermediate one.
package dashboard
