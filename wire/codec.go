package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode serializes m into its on-wire byte representation: header,
// then payload, then descriptors packed contiguously. All integers are
// little-endian.
func Encode(m *Message) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(m.Payload)+len(m.Descriptors)*DescriptorSize))

	if err := binary.Write(buf, binary.LittleEndian, uint32(m.Header.Kind)); err != nil {
		return nil, fmt.Errorf("mage/wire: encode kind: %w", err)
	}
	buf.Write(m.Header.TargetEndpoint[:])
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(m.Descriptors))); err != nil {
		return nil, fmt.Errorf("mage/wire: encode descriptor count: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(m.Payload))); err != nil {
		return nil, fmt.Errorf("mage/wire: encode total size: %w", err)
	}

	buf.Write(m.Payload)

	for _, d := range m.Descriptors {
		buf.Write(d.EndpointName[:])
		buf.Write(d.CrossNodeEndpointName[:])
		buf.Write(d.PeerNodeName[:])
		buf.Write(d.PeerEndpointName[:])
	}

	return buf.Bytes(), nil
}

// DecodeHeader parses just the fixed-size header from the front of b.
// Channel uses this to learn how many more bytes to read before a
// complete Message is available.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("mage/wire: short header, need %d bytes, have %d", HeaderSize, len(b))
	}

	var h Header
	h.Kind = MessageKind(binary.LittleEndian.Uint32(b[0:4]))
	copy(h.TargetEndpoint[:], b[4:4+NameLength])
	off := 4 + NameLength
	h.NumDescriptors = binary.LittleEndian.Uint32(b[off : off+4])
	h.TotalSize = binary.LittleEndian.Uint32(b[off+4 : off+8])
	return h, nil
}

// BodySize returns how many additional bytes (payload + descriptors)
// must be read after the header to complete a Message with header h.
func BodySize(h Header) int {
	return int(h.TotalSize) + int(h.NumDescriptors)*DescriptorSize
}

// DecodeBody parses the payload and descriptors following a header
// already decoded via DecodeHeader. body must have exactly BodySize(h)
// bytes.
func DecodeBody(h Header, body []byte) (*Message, error) {
	want := BodySize(h)
	if len(body) != want {
		return nil, fmt.Errorf("mage/wire: body length mismatch, want %d, have %d", want, len(body))
	}

	m := &Message{
		Header:  h,
		Payload: append([]byte(nil), body[:h.TotalSize]...),
	}

	descBytes := body[h.TotalSize:]
	m.Descriptors = make([]EndpointDescriptor, 0, h.NumDescriptors)
	for i := uint32(0); i < h.NumDescriptors; i++ {
		off := int(i) * DescriptorSize
		var d EndpointDescriptor
		copy(d.EndpointName[:], descBytes[off:off+NameLength])
		copy(d.CrossNodeEndpointName[:], descBytes[off+NameLength:off+2*NameLength])
		copy(d.PeerNodeName[:], descBytes[off+2*NameLength:off+3*NameLength])
		copy(d.PeerEndpointName[:], descBytes[off+3*NameLength:off+4*NameLength])
		m.Descriptors = append(m.Descriptors, d)
	}
	return m, nil
}

// EncodeInvitationBody serializes an InvitationBody as a Message
// payload.
func EncodeInvitationBody(b InvitationBody) []byte {
	buf := make([]byte, 0, 4*NameLength)
	buf = append(buf, b.InviterName[:]...)
	buf = append(buf, b.TemporaryRemoteNodeName[:]...)
	buf = append(buf, b.IntendedEndpointName[:]...)
	buf = append(buf, b.IntendedPeerEndpointName[:]...)
	return buf
}

// DecodeInvitationBody parses an InvitationBody from a Message payload.
func DecodeInvitationBody(payload []byte) (InvitationBody, error) {
	if len(payload) != 4*NameLength {
		return InvitationBody{}, fmt.Errorf("mage/wire: invitation body wrong length %d", len(payload))
	}
	var b InvitationBody
	copy(b.InviterName[:], payload[0:NameLength])
	copy(b.TemporaryRemoteNodeName[:], payload[NameLength:2*NameLength])
	copy(b.IntendedEndpointName[:], payload[2*NameLength:3*NameLength])
	copy(b.IntendedPeerEndpointName[:], payload[3*NameLength:4*NameLength])
	return b, nil
}

// EncodeAcceptInvitationBody serializes an AcceptInvitationBody as a
// Message payload.
func EncodeAcceptInvitationBody(b AcceptInvitationBody) []byte {
	buf := make([]byte, 0, 2*NameLength)
	buf = append(buf, b.TemporaryRemoteNodeName[:]...)
	buf = append(buf, b.ActualNodeName[:]...)
	return buf
}

// DecodeAcceptInvitationBody parses an AcceptInvitationBody from a
// Message payload.
func DecodeAcceptInvitationBody(payload []byte) (AcceptInvitationBody, error) {
	if len(payload) != 2*NameLength {
		return AcceptInvitationBody{}, fmt.Errorf("mage/wire: accept-invitation body wrong length %d", len(payload))
	}
	var b AcceptInvitationBody
	copy(b.TemporaryRemoteNodeName[:], payload[0:NameLength])
	copy(b.ActualNodeName[:], payload[NameLength:2*NameLength])
	return b, nil
}
