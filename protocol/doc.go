// Package protocol implements the wire format of the Symbol node websocket.
//
// After the socket opens the node sends a handshake frame carrying a session uid:
//
//	{"uid":"8C3D2A..."}
//
// Every later inbound frame names a topic channel and carries the topic payload:
//
//	{"topic":"block","data":{"block":{...},"meta":{...}}}
//	{"topic":"confirmedAdded/TBXXX...","data":{"transaction":{...},"meta":{...}}}
//
// Subscriptions are requested with the session uid:
//
//	{"uid":"8C3D2A...","subscribe":"confirmedAdded/TBXXX..."}
//	{"uid":"8C3D2A...","unsubscribe":"block"}
//
// Decode classifies frames; objects carrying neither uid nor topic come back as
// KindUnknown so callers can drop them without treating them as errors.
package protocol
