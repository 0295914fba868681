package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTripsUserMessage(t *testing.T) {
	original := &Message{
		Header: Header{
			Kind:           KindUserMessage,
			TargetEndpoint: GenerateName(),
		},
		Payload: []byte("hello, mage"),
		Descriptors: []EndpointDescriptor{
			{
				EndpointName:          GenerateName(),
				CrossNodeEndpointName: GenerateName(),
				PeerNodeName:          GenerateName(),
				PeerEndpointName:      GenerateName(),
			},
		},
	}
	original.Header.NumDescriptors = uint32(len(original.Descriptors))
	original.Header.TotalSize = uint32(len(original.Payload))

	encoded, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	header, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if header.Kind != KindUserMessage {
		t.Fatalf("expected kind UserMessage, got %v", header.Kind)
	}
	if header.TargetEndpoint != original.Header.TargetEndpoint {
		t.Fatal("target endpoint mismatch after decode")
	}

	body := encoded[HeaderSize:]
	if len(body) != BodySize(header) {
		t.Fatalf("expected body size %d, got %d", BodySize(header), len(body))
	}

	decoded, err := DecodeBody(header, body)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Fatalf("payload mismatch: got %q want %q", decoded.Payload, original.Payload)
	}
	if len(decoded.Descriptors) != 1 || decoded.Descriptors[0] != original.Descriptors[0] {
		t.Fatalf("descriptor mismatch: got %+v want %+v", decoded.Descriptors, original.Descriptors)
	}
}

func TestDecodeHeaderRejectsShortInput(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding a too-short header")
	}
}

func TestDecodeBodyRejectsWrongLength(t *testing.T) {
	h := Header{NumDescriptors: 0, TotalSize: 10}
	if _, err := DecodeBody(h, []byte("short")); err == nil {
		t.Fatal("expected error decoding a body of the wrong length")
	}
}

func TestInvitationBodyRoundTrips(t *testing.T) {
	original := InvitationBody{
		InviterName:              GenerateName(),
		TemporaryRemoteNodeName:  GenerateName(),
		IntendedEndpointName:     GenerateName(),
		IntendedPeerEndpointName: GenerateName(),
	}
	decoded, err := DecodeInvitationBody(EncodeInvitationBody(original))
	if err != nil {
		t.Fatalf("DecodeInvitationBody: %v", err)
	}
	if decoded != original {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, original)
	}
}

func TestAcceptInvitationBodyRoundTrips(t *testing.T) {
	original := AcceptInvitationBody{
		TemporaryRemoteNodeName: GenerateName(),
		ActualNodeName:          GenerateName(),
	}
	decoded, err := DecodeAcceptInvitationBody(EncodeAcceptInvitationBody(original))
	if err != nil {
		t.Fatalf("DecodeAcceptInvitationBody: %v", err)
	}
	if decoded != original {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, original)
	}
}
