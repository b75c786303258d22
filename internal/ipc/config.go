package ipc

type Config struct {
	// Endpoint is the path of the unix socket to listen on.
	Endpoint string `conf:"endpoint"`
}
