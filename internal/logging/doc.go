// Package logging provides structured logging for agentlab runs.
//
// Each run writes JSON lines to {runDir}/debug.log through log/slog. Child
// loggers carry the run ID, the role currently being invoked and the
// iteration index, so a single role's activity can be pulled out of the log
// after the fact:
//
//	logger, err := logging.NewLoggerWithRotation(runDir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	coder := logger.WithRun(runID).WithRole("coder").WithIteration(0)
//	coder.Info("code drafted", "bytes", len(code))
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"code drafted","run_id":"...","role":"coder","iteration":0,"bytes":812}
//
// # Rotation
//
// [RotatingWriter] rotates the log once it passes MaxSizeMB, keeping
// MaxBackups older files named debug.log.1 (newest) through debug.log.N,
// optionally gzipped.
//
// # Reading logs back
//
// [ReadLogs] parses a run's log and [FilterLogs] narrows it by level, role,
// iteration or message text. [WriteText] renders entries for the terminal.
//
// All types in this package are safe for concurrent use.
package logging
