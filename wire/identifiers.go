// Package wire implements the data model shared by every node: fixed-
// width identifiers, addresses, the message header/payload/descriptor
// layout, and the little-endian codec the wire format is pinned to.
package wire

import (
	"crypto/rand"
)

// NameLength is the fixed width of every NodeName/EndpointName/temporary
// pipe name in the system.
const NameLength = 15

// charset is the exact alphabet identifiers are drawn from.
const charset = "0123456789!@#$%^&*ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Name is a fixed-width 15-byte random ASCII identifier: the common
// representation backing both NodeName and EndpointName.
type Name [NameLength]byte

// NodeName identifies a node, unique within the set of nodes it has
// ever communicated with (in practice, globally unique by construction).
type NodeName = Name

// EndpointName identifies an endpoint, unique within its owning node's
// local endpoint map.
type EndpointName = Name

// GenerateName draws a fresh random 15-byte identifier from the
// system's charset. Uses crypto/rand: the identifiers are security-
// adjacent, since they are the only addressing credential a remote
// process has for an endpoint.
func GenerateName() Name {
	var n Name
	buf := make([]byte, NameLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		n[i] = charset[int(b)%len(charset)]
	}
	return n
}

// String renders the identifier as its raw ASCII bytes.
func (n Name) String() string {
	return string(n[:])
}

// IsZero reports whether n is the zero value (never a valid generated
// name; used to detect "no peer yet" / placeholder states).
func (n Name) IsZero() bool {
	return n == Name{}
}

// PlaceholderNodeName is the temporary channel key used by
// AcceptInvitation before the inviter's real name is known.
var PlaceholderNodeName = nameFromString("INIT")

func nameFromString(s string) Name {
	var n Name
	copy(n[:], s)
	return n
}

// Address identifies one endpoint anywhere in the system: the node
// that owns it plus its name within that node's local endpoint map.
type Address struct {
	NodeName     NodeName
	EndpointName EndpointName
}

// IsZero reports whether a is the unset Address value.
func (a Address) IsZero() bool {
	return a.NodeName.IsZero() && a.EndpointName.IsZero()
}
