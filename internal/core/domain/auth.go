package domain

// AuthData lives only for the handshake; once the peer is open the
// connection only remembers that it is authorised.
type AuthData struct {
	PeerID      PeerID
	Credentials any
	Metadata    any
}
