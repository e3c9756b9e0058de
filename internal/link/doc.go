// Package link maintains the single logical connection between the agent
// and its backend.
//
// A Manager drives a Transport through four states:
//
//	DISCONNECTED/FAILED --Connect--> CONNECTING --connected--> CONNECTED
//	CONNECTING --refused/disconnected/error--> DISCONNECTED (backoff grows)
//	CONNECTED --disconnected--> DISCONNECTED
//	CONNECTED --transport error--> FAILED
//
// Reconnection is bounded twice: by an exponential backoff with jitter
// measured from the previous attempt, and by a token-bucket limiter shared
// with the rest of the agent.
//
// # Usage Example
//
//	m := link.NewManager(transport, clk, nil, link.DefaultConfig())
//	m.Reconfigure(link.Target{Host: "backend.local", Port: 3001})
//
//	for {
//	    for _, ev := range m.Poll() {
//	        switch e := ev.(type) {
//	        case link.StateChanged:
//	            // e.From, e.To
//	        case link.Message:
//	            // e.Payload
//	        }
//	    }
//	}
//
// There is no outbound queue: Send fails with ErrNotConnected while the link
// is down.
package link
