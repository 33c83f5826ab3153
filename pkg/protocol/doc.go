// Package protocol defines the envelope exchanged between clients, the
// coordinator and storage nodes.
//
// Every message is one fixed-size envelope: an XDR uint32 kind followed by a
// fixed opaque payload of PayloadSize bytes. Payload fields are
// null-terminated and zero-padded to a fixed capacity. Encoders check every
// field against its capacity and fail with ErrFieldTooLong rather than
// overrunning it. A reader that receives fewer than EnvelopeSize bytes treats
// the peer as closed; partial envelopes are never reassembled.
package protocol
