// Package protocol owns the docking-station wire contract.
//
// Ownership boundary:
// - fixed 256-byte frame encode/decode
// - message code enumeration
// - register read request/response payloads
package protocol
