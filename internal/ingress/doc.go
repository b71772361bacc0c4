// Package ingress owns the broker-port TCP front end.
//
// Ownership boundary:
// - listener bind and the accept loop with per-class backoff
// - per-connection read loop feeding the frame decoder
// - delivery of complete raw frames to a FrameHandler
//
// Frames are not interpreted here; the handler receives header, length
// field and payload as one byte span.
package ingress
