// Package agent wires the relaynode device together.
//
// An Agent owns the configuration store, the provisioning coordinator and
// the backend link. Boot loads the stored record; when none is usable the
// coordinator runs a provisioning pass and, once a record is committed,
// the link is pointed at its backend. From then on every Tick polls the
// link and handles the application protocol:
//
//   - after connecting the agent identifies itself with its device name,
//     secret and a fresh session id,
//   - config_update messages are merged over the current record,
//     validated, committed and acknowledged with config_ack,
//   - ping is answered with pong,
//   - everything else goes to the CommandHandler.
//
// All components are ticked from the goroutine that calls Tick or Run.
package agent
