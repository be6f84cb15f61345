// Package rsession implements the session actor at the heart of the River
// protocol: the handshake, sequence/ack bookkeeping, stream registry,
// resend buffer, heartbeat and reconnect-and-resume mechanics described in
// spec §4.2-4.3 and §5. It is internal because client and server each
// expose their own typed dispatcher on top of it; neither the wire frame
// shape nor the actor's concurrency discipline are meant to leak out.
//
// A Session owns exactly one transport.Conn at a time and processes all
// inbound frames on a single goroutine (its "receive loop"). Writes may
// come from other goroutines (a stream's Sink is called from whatever
// goroutine holds the stream), so the outbound path is serialized by its
// own mutex instead of being folded into the receive loop. Because both
// the receive loop and writers touch the sequence manager, resend buffer
// and stream registry, each of those guards its own state with a lock.
package rsession
