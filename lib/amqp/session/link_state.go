package session

// linkState is the lifecycle of one slot in the link table. A vacant slot
// (not present in the table) is the None state.
//
//	None -> Opening -> Established -> Closing -> None
//
// A slot never returns to Opening for the same key; the table bumps the slot
// generation whenever it is freed.
type linkState interface {
	stateName() string
}

// linkOpening: our Attach is out, waiting for the peer to echo it.
type linkOpening struct {
	name    string
	address string
	future  *LinkFuture
}

// linkEstablished: the peer answered; the sender is live.
type linkEstablished struct {
	sender *SenderLink
}

// linkClosing: we sent a closing Detach and wait for the peer's.
type linkClosing struct {
	sender *SenderLink
	done   chan error
}

func (*linkOpening) stateName() string     { return "opening" }
func (*linkEstablished) stateName() string { return "established" }
func (*linkClosing) stateName() string     { return "closing" }
