package lsps2

// Config holds the server-side configuration for the JIT-channel service.
// Every field must be set for the service to carry out its duties.
type Config struct {
	// PromiseSecret is used to calculate the promise for the opening fee
	// parameters handed out to clients. Changing this value invalidates
	// every promise issued under the old secret.
	PromiseSecret [32]byte
}
