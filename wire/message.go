package wire

// MessageKind identifies which of the three (plus one reserved) kinds
// of message a frame carries.
type MessageKind uint32

const (
	// KindSendInvitation carries the invitation handshake body.
	KindSendInvitation MessageKind = iota
	// KindAcceptInvitation carries the accept-invitation body.
	KindAcceptInvitation
	// KindUserMessage carries an opaque proxy-generated payload plus
	// any inline endpoint descriptors.
	KindUserMessage
	// KindDisconnect is a SPEC_FULL addition (see SPEC_FULL.md, [WIRE]
	// additions): a reserved kind that nothing in this module sends.
	// Node fails the endpoints of a dead channel directly, and logs a
	// received KindDisconnect frame as an unexpected kind.
	KindDisconnect
)

func (k MessageKind) String() string {
	switch k {
	case KindSendInvitation:
		return "SendInvitation"
	case KindAcceptInvitation:
		return "AcceptInvitation"
	case KindUserMessage:
		return "UserMessage"
	case KindDisconnect:
		return "Disconnect"
	default:
		return "Unknown"
	}
}

// HeaderSize is the fixed on-wire size of Header: kind(4) +
// target_endpoint(15) + num_endpoint_descriptors(4) + total_size(4).
const HeaderSize = 4 + NameLength + 4 + 4

// DescriptorSize is the fixed on-wire size of one EndpointDescriptor:
// four 15-byte identifiers.
const DescriptorSize = 4 * NameLength

// Header is the fixed-size frame header every Message begins with.
type Header struct {
	Kind               MessageKind
	TargetEndpoint     EndpointName
	NumDescriptors     uint32
	TotalSize          uint32 // length of Payload, in bytes
}

// EndpointDescriptor is an inline handle-transfer record.
type EndpointDescriptor struct {
	// EndpointName is the sending endpoint's own name, used by the
	// receiver when the transfer is same-process (AcceptMessageOnDelegateThread).
	EndpointName EndpointName
	// CrossNodeEndpointName is the fresh name the receiving process
	// will use when it creates the new local endpoint.
	CrossNodeEndpointName EndpointName
	// PeerNodeName/PeerEndpointName together are the transferred
	// endpoint's own peer Address.
	PeerNodeName     NodeName
	PeerEndpointName EndpointName
}

// Message is a fully decoded frame: header, opaque payload bytes, and
// any inline endpoint descriptors packed after the payload.
type Message struct {
	Header      Header
	Payload     []byte
	Descriptors []EndpointDescriptor
}

// InvitationBody is the SendInvitation message body.
type InvitationBody struct {
	InviterName                NodeName
	TemporaryRemoteNodeName    NodeName
	IntendedEndpointName       EndpointName
	IntendedPeerEndpointName   EndpointName
}

// AcceptInvitationBody is the AcceptInvitation message body.
type AcceptInvitationBody struct {
	TemporaryRemoteNodeName NodeName
	ActualNodeName          NodeName
}
