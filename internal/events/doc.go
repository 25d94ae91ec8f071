// Package events defines the realtime wire protocol.
//
// Outbound messages are Envelope ({type, data}) with a closed set of event types.
// Inbound client frames (ping, subscribe, unsubscribe) are parsed into ClientMessage.
// Unknown inbound kinds and unknown event types are ignored for forward compatibility.
package events
