// Package logging provides structured JSON logging for the Selfie2Snap
// service and CLI.
//
// It wraps log/slog with child loggers that carry job and frame context, so
// a single frame's dispatch history can be filtered out of a busy log:
//
//	logger, err := logging.NewLogger("/var/log/selfie2snap", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	frameLog := logger.WithJob(jobID).WithFrame(2)
//	frameLog.Info("dispatch failed", "attempt", 1, "error", err.Error())
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"dispatch failed","job_id":"...","frame":2,"attempt":1,"error":"..."}
//
// Use [NopLogger] in tests or wherever logging is optional.
package logging
