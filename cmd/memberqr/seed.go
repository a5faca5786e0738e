package main

import (
	"context"
	"log/slog"

	"github.com/dukerupert/memberqr/internal/server"
)

// seedRoster imports the workbook at path into an empty roster. A populated
// roster is left alone.
func seedRoster(ctx context.Context, srv *server.Server, path string, logger *slog.Logger) {
	n, err := srv.Members().Count(ctx)
	if err != nil {
		logger.Error("count members", "error", err)
		return
	}
	if n > 0 {
		logger.Debug("roster already populated, skipping seed", "members", n)
		return
	}

	res, err := srv.Importer().ImportFile(ctx, path)
	if err != nil {
		logger.Error("seed roster", "path", path, "error", err)
		return
	}
	for _, msg := range res.Errors {
		logger.Warn("seed row skipped", "reason", msg)
	}
	logger.Info("seeded roster", "path", path, "inserted", res.Inserted, "skipped", res.Skipped)
}
