// Package protocol defines the message envelope of the collaboration relay.
//
// # Message Kinds
//
// Every message carries a protocol version and one of six kinds:
//   - Request: addressed to a peer or to the server, answered by a Response or
//     ResponseError bearing the same id
//   - Response / ResponseError: settle a pending request
//   - Notification: targeted, no response expected
//   - Broadcast: fanned out by the relay to every other room member
//   - Error: protocol level failure not tied to a request
//
// # Envelope
//
// The envelope fields (version, kind, id, origin, target) are always readable by
// the relay. The body lives in Content until it is encrypted. Encrypted messages
// carry Ciphertext and an Encryption block listing one wrapped symmetric key and
// IV per recipient plus the compression algorithm used.
//
// A broadcast encrypted for N recipients carries N wrapped keys. The relay uses
// ForRecipient to forward each member a copy holding only its own entry, so a
// receiver always decrypts a message with exactly one key.
//
// # Signatures
//
// Methods are declared once as RequestType, NotificationType or BroadcastType
// values. The connection package uses them to give call sites typed parameters
// while dispatch stays a runtime lookup by method name.
package protocol
