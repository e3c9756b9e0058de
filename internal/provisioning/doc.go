// Package provisioning obtains a device configuration when none is stored.
//
// A Coordinator offers the operator a numeric menu and drives the chosen
// Method until it yields a candidate record:
//
//  1. ConsoleMethod   line prompts on stdin (readline) or a serial port
//  2. WebFormMethod   HTTP form served on the access point address
//  3. StorageMethod   config.json on a removable storage mount
//  4. RemoteMethod    JSON pushed over MQTT
//  5. compiled development defaults
//
// Every candidate is validated before it is committed. A method that
// fails, declines or times out returns the coordinator to the menu; after
// MaxRetries failures, or when the menu itself times out, the compiled
// defaults are committed and reported as insecure.
//
// Nothing here blocks. The coordinator and its methods advance only inside
// Tick, which the agent calls from its poll loop; readers, HTTP handlers
// and MQTT callbacks hand their input over buffered channels.
//
// # Usage Example
//
//	coord := provisioning.NewCoordinator(store, clk, console, provisioning.DefaultConfig())
//	coord.Register(provisioning.NewConsoleMethod(console, 0, 0))
//	coord.Register(provisioning.NewStorageMethod(afero.NewOsFs(), "/media/sd"))
//	coord.Start()
//
//	for coord.Tick() != provisioning.PhaseDone {
//	    time.Sleep(100 * time.Millisecond)
//	}
package provisioning
