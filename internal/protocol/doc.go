// Package protocol defines the JSON messages exchanged between a relaynode
// agent and its backend.
//
// Every message is a JSON object with a "type" field:
//
//	identify       device -> backend   deviceId, deviceType, secret, sessionId, timestamp
//	identified     backend -> device   connectionId
//	error          backend -> device   reason
//	config_update  backend -> device   config (partial provisioning document)
//	config_ack     device -> backend   success, message, version
//	ping / pong    either direction
//	command        backend -> device   command, params
//
// # Usage Example - Building
//
//	msg, err := protocol.BuildIdentify("relay-7", secret, protocol.NewSessionID(), time.Now())
//	if err != nil {
//	    return err
//	}
//	err = manager.Send(msg)
//
// # Usage Example - Dispatching
//
//	router := protocol.NewRouter()
//	router.Handle(protocol.TypePing, func(env protocol.Envelope) error {
//	    pong, _ := protocol.BuildPong(time.Now())
//	    return manager.Send(pong)
//	})
//	router.Dispatch(payload)
package protocol
