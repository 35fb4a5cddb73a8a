// Package probes implements file based readiness and liveness signals for exec probes.
package probes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// MarkReady creates the readiness file.
func MarkReady(fileName string) error {
	if err := touch(fileName); err != nil {
		return fmt.Errorf("failed to create readiness file: %w", err)
	}
	return nil
}

// RunLiveness touches the liveness file every interval until ctx is done, then removes
// both probe files.
func RunLiveness(ctx context.Context, logger *slog.Logger, livenessFile, readinessFile string, interval time.Duration) error {
	defer cleanup(logger, livenessFile, readinessFile)

	if err := touch(livenessFile); err != nil {
		return fmt.Errorf("failed to create liveness file: %w", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := touch(livenessFile); err != nil {
				logger.Warn("Failed to update liveness file", "file", livenessFile, "error", err)
			}
		}
	}
}

func touch(fileName string) error {
	now := time.Now()
	if err := os.Chtimes(fileName, now, now); err == nil {
		return nil
	}
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	return f.Close()
}

func cleanup(logger *slog.Logger, files ...string) {
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove probe file", "file", f, "error", err)
		}
	}
}
