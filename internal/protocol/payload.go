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

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf8"
)

// Field sizes inside the payload slot.
const (
	UsernameSize     = 32
	PasswordSize     = 64
	GroupNameSize    = 32
	ChatTextSize     = PayloadSize - GroupNameSize - UsernameSize - 8
	ResponseTextSize = PayloadSize - 4

	// Usable lengths leave room for the NUL terminator.
	MaxUsernameLen  = UsernameSize - 1
	MaxPasswordLen  = PasswordSize - 1
	MaxGroupNameLen = GroupNameSize - 1
	MaxChatTextLen  = ChatTextSize - 1
	MaxResponseLen  = ResponseTextSize - 1
)

// Body is one of the payload variants. The set is closed: only the types in
// this file implement it.
type Body interface {
	// Size is the encoded size reported in the frame's length field.
	Size() int

	marshal(slot []byte)
	unmarshal(slot []byte)
}

// Credentials is the payload of LOGIN and REGISTER.
type Credentials struct {
	Username string
	Password string
}

// GroupOp is the payload of JOIN_GROUP, CREATE_GROUP and LEAVE_GROUP.
type GroupOp struct {
	Group    string
	Username string
}

// Chat is the payload of CHAT_MESSAGE.
type Chat struct {
	Group     string
	Username  string
	Text      string
	Timestamp time.Time
}

// Response is the payload of every server reply.
type Response struct {
	Success bool
	Text    string
}

// Empty is the payload of LOGOUT.
type Empty struct{}

// Envelope is a decoded frame.
type Envelope struct {
	Type   MessageType
	Length uint32
	Body   Body
}

// newBody returns the zero payload variant used by message type t.
func newBody(t MessageType) (Body, bool) {
	switch t {
	case TypeLogin, TypeRegister:
		return &Credentials{}, true
	case TypeJoinGroup, TypeCreateGroup, TypeLeaveGroup:
		return &GroupOp{}, true
	case TypeChatMessage:
		return &Chat{}, true
	case TypeLoginResponse, TypeRegisterResponse, TypeGroupResponse, TypeError, TypeSuccess:
		return &Response{}, true
	case TypeLogout:
		return &Empty{}, true
	default:
		return nil, false
	}
}

// Decode interprets the payload slot according to the frame's type tag.
// The declared length is carried through but not checked.
func Decode(f Frame) (Envelope, error) {
	body, ok := newBody(f.Type)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnknownType, uint32(f.Type))
	}
	body.unmarshal(f.Payload[:])
	return Envelope{Type: f.Type, Length: f.Length, Body: body}, nil
}

// Encode lays the envelope out as a wire frame.
func Encode(e Envelope) Frame {
	f := Frame{Type: e.Type}
	if e.Body != nil {
		e.Body.marshal(f.Payload[:])
		f.Length = uint32(e.Body.Size())
	}
	return f
}

// NewLogin builds a LOGIN envelope.
func NewLogin(username, password string) Envelope {
	return envelope(TypeLogin, &Credentials{Username: username, Password: password})
}

// NewRegister builds a REGISTER envelope.
func NewRegister(username, password string) Envelope {
	return envelope(TypeRegister, &Credentials{Username: username, Password: password})
}

// NewGroupOp builds a CREATE_GROUP, JOIN_GROUP or LEAVE_GROUP envelope.
func NewGroupOp(t MessageType, group, username string) Envelope {
	return envelope(t, &GroupOp{Group: group, Username: username})
}

// NewChat builds a CHAT_MESSAGE envelope.
func NewChat(group, username, text string, ts time.Time) Envelope {
	return envelope(TypeChatMessage, &Chat{Group: group, Username: username, Text: text, Timestamp: ts})
}

// NewResponse builds a reply envelope of type t.
func NewResponse(t MessageType, success bool, text string) Envelope {
	return envelope(t, &Response{Success: success, Text: text})
}

// NewLogout builds a LOGOUT envelope.
func NewLogout() Envelope {
	return envelope(TypeLogout, &Empty{})
}

func envelope(t MessageType, b Body) Envelope {
	return Envelope{Type: t, Length: uint32(b.Size()), Body: b}
}

// ========== Variant layouts ==========

func (c *Credentials) Size() int { return UsernameSize + PasswordSize }

func (c *Credentials) marshal(slot []byte) {
	putString(slot[0:UsernameSize], c.Username)
	putString(slot[UsernameSize:UsernameSize+PasswordSize], c.Password)
}

func (c *Credentials) unmarshal(slot []byte) {
	c.Username = getString(slot[0:UsernameSize])
	c.Password = getString(slot[UsernameSize : UsernameSize+PasswordSize])
}

func (g *GroupOp) Size() int { return GroupNameSize + UsernameSize }

func (g *GroupOp) marshal(slot []byte) {
	putString(slot[0:GroupNameSize], g.Group)
	putString(slot[GroupNameSize:GroupNameSize+UsernameSize], g.Username)
}

func (g *GroupOp) unmarshal(slot []byte) {
	g.Group = getString(slot[0:GroupNameSize])
	g.Username = getString(slot[GroupNameSize : GroupNameSize+UsernameSize])
}

const (
	chatUserOff = GroupNameSize
	chatTextOff = chatUserOff + UsernameSize
	chatTSOff   = chatTextOff + ChatTextSize
)

func (c *Chat) Size() int { return PayloadSize }

func (c *Chat) marshal(slot []byte) {
	putString(slot[0:chatUserOff], c.Group)
	putString(slot[chatUserOff:chatTextOff], c.Username)
	putString(slot[chatTextOff:chatTSOff], c.Text)
	var ts int64
	if !c.Timestamp.IsZero() {
		ts = c.Timestamp.Unix()
	}
	binary.LittleEndian.PutUint64(slot[chatTSOff:chatTSOff+8], uint64(ts))
}

func (c *Chat) unmarshal(slot []byte) {
	c.Group = getString(slot[0:chatUserOff])
	c.Username = getString(slot[chatUserOff:chatTextOff])
	c.Text = getString(slot[chatTextOff:chatTSOff])
	c.Timestamp = time.Time{}
	if ts := int64(binary.LittleEndian.Uint64(slot[chatTSOff : chatTSOff+8])); ts != 0 {
		c.Timestamp = time.Unix(ts, 0)
	}
}

func (r *Response) Size() int { return PayloadSize }

func (r *Response) marshal(slot []byte) {
	var ok uint32
	if r.Success {
		ok = 1
	}
	binary.LittleEndian.PutUint32(slot[0:4], ok)
	putString(slot[4:4+ResponseTextSize], r.Text)
}

func (r *Response) unmarshal(slot []byte) {
	// C peers send any non-zero int as true.
	r.Success = binary.LittleEndian.Uint32(slot[0:4]) != 0
	r.Text = getString(slot[4 : 4+ResponseTextSize])
}

func (Empty) Size() int         { return 0 }
func (*Empty) marshal([]byte)   {}
func (*Empty) unmarshal([]byte) {}

// putString writes s NUL padded into dst, keeping the last byte for the
// terminator and never splitting a UTF-8 sequence.
func putString(dst []byte, s string) {
	n := fitUTF8(s, len(dst)-1)
	copy(dst, s[:n])
	clear(dst[n:])
}

// getString reads a NUL terminated string. A field without a terminator is
// read up to its full width.
func getString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

// fitUTF8 returns the longest prefix length of s that is at most max bytes
// and ends on a rune boundary.
func fitUTF8(s string, max int) int {
	if len(s) <= max {
		return len(s)
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
