/*
Package log provides structured logging for gpubox using zerolog.

The package keeps one global zerolog.Logger configured by Init and hands out
child loggers that carry fixed fields:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("lifecycle")
	logger.Info().Str("op", "create").Msg("container created")

	logger = log.WithContainer("lifecycle", "alice-20240102140405-3f2a9c1d")
	logger.Warn().Msg("engine container missing")

Until Init is called the global logger discards everything, which keeps
package tests quiet.

Console output (JSONOutput false) is meant for operators running
`gpubox serve` in a terminal; JSON output is meant for log shipping.
*/
package log
