package link

// Event is a value returned from Manager.Poll. It is one of StateChanged,
// Message or BinaryMessage.
type Event interface {
	linkEvent()
}

// StateChanged reports a link state transition.
type StateChanged struct {
	From State
	To   State
}

// Message carries an inbound text frame.
type Message struct {
	Payload []byte
}

// BinaryMessage carries an inbound binary frame. Only produced when the
// Manager is configured with ForwardBinary.
type BinaryMessage struct {
	Payload []byte
}

func (StateChanged) linkEvent()  {}
func (Message) linkEvent()       {}
func (BinaryMessage) linkEvent() {}

// Handler receives link events from Poll for consumers that prefer
// registration over iterating the returned slice. Both paths see the same
// events in the same order.
type Handler interface {
	HandleState(from, to State)
	HandleMessage(payload []byte)
}

// Stats are cumulative link counters.
type Stats struct {
	Connects    uint64 // successful connections
	Failures    uint64 // failed attempts and transport errors
	MessagesIn  uint64
	MessagesOut uint64
	SendErrors  uint64
}
