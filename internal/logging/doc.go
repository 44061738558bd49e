// Package logging provides structured logging for metagent.
//
// Logs are JSON lines written through log/slog to
// .agents/<agent>/logs/metagent.log, rotated by size. Each record carries
// the persistent attributes of the logger that produced it (agent, task,
// stage, session), so a single file can be filtered per task after the fact.
//
// User-facing output is not routed through this package; commands print to
// stdout and stderr directly.
//
//	logger, err := logging.NewLogger(path, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithTask("alpha").WithStage("build").Info("stage started", "model", "codex")
package logging
