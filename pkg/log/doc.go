/*
Package log provides structured logging for the yokan provider using zerolog.

A single package-level Logger is initialized once via Init and is safe for
concurrent use from every RPC handler goroutine. Component loggers attach
scoped fields (component name, provider id, rpc name, request id) so that a
single noisy handler can be grepped out of a busy provider's log stream.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	rpcLog := log.WithComponent("put").With().Uint64("req_id", id).Logger()
	rpcLog.Debug().Msg("pulled arguments")
*/
package log
