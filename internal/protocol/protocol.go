/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package protocol defines the tcpchat binary wire protocol.

PROTOCOL OVERVIEW:
==================
Every exchange between a client and the server is a single FIXED-SIZE frame.
The frame mirrors the C struct used by the first generation of clients, so a
peer can read or write it with one call and no length negotiation:

	+-------------------+-------------------+------------------------------+
	| Type (4 bytes LE) | Length (4 bytes)  | Payload slot (1024 bytes)    |
	+-------------------+-------------------+------------------------------+

Total frame size: 1032 bytes (FrameSize). Every read and write transfers
exactly FrameSize bytes regardless of the message type.

HEADER FIELDS:
==============
- Type (uint32, little-endian): message type, see MessageType
- Length (uint32, little-endian): encoded size of the payload variant. The
  field is informational only; it never bounds the transfer.

PAYLOAD VARIANTS:
=================
The payload slot is interpreted by the type tag alone (see payload.go):

	Credentials  username[32] password[64]                    LOGIN, REGISTER
	GroupOp      group[32] username[32]                       JOIN_GROUP, CREATE_GROUP, LEAVE_GROUP
	Chat         group[32] username[32] text[952] ts int64    CHAT_MESSAGE
	Response     success int32 text[1020]                     *_RESPONSE, ERROR, SUCCESS
	Empty        (unused slot)                                LOGOUT

Strings are NUL padded. At most len(field)-1 bytes are written so that C
peers always find a terminator.

INTEGRITY:
==========
There is no magic byte, version or checksum. A corrupted frame decodes into
whatever the type tag says; only unknown type tags are rejected.
*/
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire layout constants.
const (
	// HeaderSize is the size of the type and length fields.
	HeaderSize = 8

	// PayloadSize is the fixed size of the payload slot.
	PayloadSize = 1024

	// FrameSize is the number of bytes moved by every read and write.
	FrameSize = HeaderSize + PayloadSize
)

// MessageType identifies the payload carried by a frame.
type MessageType uint32

// Message types. The numeric values are part of the wire format.
const (
	TypeLogin            MessageType = 1
	TypeRegister         MessageType = 2
	TypeLoginResponse    MessageType = 3
	TypeRegisterResponse MessageType = 4
	TypeJoinGroup        MessageType = 5
	TypeCreateGroup      MessageType = 6
	TypeGroupResponse    MessageType = 7
	TypeChatMessage      MessageType = 8
	TypeLeaveGroup       MessageType = 9
	TypeLogout           MessageType = 10
	TypeError            MessageType = 11
	TypeSuccess          MessageType = 12
)

var typeNames = map[MessageType]string{
	TypeLogin:            "LOGIN",
	TypeRegister:         "REGISTER",
	TypeLoginResponse:    "LOGIN_RESPONSE",
	TypeRegisterResponse: "REGISTER_RESPONSE",
	TypeJoinGroup:        "JOIN_GROUP",
	TypeCreateGroup:      "CREATE_GROUP",
	TypeGroupResponse:    "GROUP_RESPONSE",
	TypeChatMessage:      "CHAT_MESSAGE",
	TypeLeaveGroup:       "LEAVE_GROUP",
	TypeLogout:           "LOGOUT",
	TypeError:            "ERROR",
	TypeSuccess:          "SUCCESS",
}

// String returns the protocol name of the message type.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
}

// Valid reports whether t is one of the twelve defined message types.
func (t MessageType) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Protocol errors. Both are ProtocolErrors: the frame is discarded and the
// connection stays open.
var (
	// ErrUnknownType indicates a type tag outside the defined range.
	ErrUnknownType = errors.New("unknown message type")

	// ErrMalformedFrame indicates a frame that is not exactly FrameSize bytes.
	// Stream transports never produce it; message transports can.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Frame is one raw wire frame.
type Frame struct {
	Type    MessageType
	Length  uint32
	Payload [PayloadSize]byte
}

// MarshalBinary encodes the frame into exactly FrameSize bytes.
func (f *Frame) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FrameSize)
	f.put(buf)
	return buf, nil
}

// UnmarshalBinary decodes a frame from exactly FrameSize bytes.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) != FrameSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedFrame, len(data), FrameSize)
	}
	f.Type = MessageType(binary.LittleEndian.Uint32(data[0:4]))
	f.Length = binary.LittleEndian.Uint32(data[4:8])
	copy(f.Payload[:], data[HeaderSize:])
	return nil
}

func (f *Frame) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.Type))
	binary.LittleEndian.PutUint32(buf[4:8], f.Length)
	copy(buf[HeaderSize:], f.Payload[:])
}

// ReadFrame reads exactly one frame from r.
//
// RETURNS:
// - io.EOF when the peer closed the stream before sending anything
// - io.ErrUnexpectedEOF when the stream ended inside a frame
// - any other error from r
func ReadFrame(r io.Reader) (Frame, error) {
	var buf [FrameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Frame{}, err
	}
	var f Frame
	// Cannot fail: the buffer has the exact size.
	_ = f.UnmarshalBinary(buf[:])
	return f, nil
}

// WriteFrame writes exactly one frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	var buf [FrameSize]byte
	f.put(buf[:])
	_, err := w.Write(buf[:])
	return err
}
