// Package message holds the message value handed to a sender link and its
// body encoding.
package message

import "encoding/binary"

// FormatAMQP is message-format 0, the standard AMQP 1.0 bare message.
const FormatAMQP uint32 = 0

// section descriptors, encoded as smallulong codes
const (
	descriptorPrefix  = 0x00
	typeSmallULong    = 0x53
	sectionData       = 0x75
	typeVBin8         = 0xa0
	typeVBin32        = 0xb0
	maxVBin8Length    = 0xff
	dataSectionHeader = 3
)

// Message is an application message queued on a sender link.
type Message struct {
	// Format is the message-format carried in the Transfer.
	Format uint32
	// Body is the opaque application payload.
	Body []byte
}

// New creates a standard format message around body.
func New(body []byte) *Message {
	return &Message{Format: FormatAMQP, Body: body}
}

// MessageFormat returns the message-format tag for the Transfer performative.
func (m *Message) MessageFormat() uint32 {
	return m.Format
}

// Serialize encodes the body as a single AMQP data section. The result is the
// exact payload of the Transfer frame.
func (m *Message) Serialize() []byte {
	n := len(m.Body)
	if n <= maxVBin8Length {
		buf := make([]byte, 0, dataSectionHeader+2+n)
		buf = append(buf, descriptorPrefix, typeSmallULong, sectionData, typeVBin8, byte(n))
		return append(buf, m.Body...)
	}
	buf := make([]byte, dataSectionHeader+5, dataSectionHeader+5+n)
	buf[0], buf[1], buf[2], buf[3] = descriptorPrefix, typeSmallULong, sectionData, typeVBin32
	binary.BigEndian.PutUint32(buf[4:8], uint32(n))
	return append(buf, m.Body...)
}
