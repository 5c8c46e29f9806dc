// Package protocol implements the binary request/response wire format.
//
// Every request starts with a 4-byte command code followed by the command's
// payload. Every response starts with a 4-byte status code followed by either
// the command-specific payload (StatusSuccess) or an error message (StatusFailure).
//
// Encoding (big-endian):
//   - int32, int64: fixed width two's complement
//   - float64: IEEE 754 bits
//   - bool: one byte, 0 or 1
//   - string: uint16 byte length followed by UTF-8 bytes
//
// The same primitives are used for the on-disk day files written by the
// series archive.
package protocol
