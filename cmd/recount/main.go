package main

import (
	"context"
	"os"

	"cinelog/internal/config"
	"cinelog/internal/db"
	"cinelog/internal/logger"
	"cinelog/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var commentID uint

	cmd := &cobra.Command{
		Use:   "cinelog-recount",
		Short: "Recount like/dislike counters from the vote ledger",
		Long: "Recomputes likes_count and dislikes_count of comments from their votes.\n" +
			"Without flags every comment is visited; running it twice changes nothing.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Setup(cfg.LogLevel, cfg.LogFormat)

			conn, err := db.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			projection := services.NewProjectionService(conn)
			return run(cmd.Context(), projection, commentID)
		},
	}
	cmd.Flags().UintVar(&commentID, "comment", 0, "repair a single comment by id")
	return cmd
}

func run(ctx context.Context, projection *services.ProjectionService, commentID uint) error {
	log := logger.For(ctx)
	if commentID != 0 {
		counts, err := projection.RepairComment(ctx, commentID)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"comment_id": commentID,
			"likes":      counts.Likes,
			"dislikes":   counts.Dislikes,
		}).Info("Comment counters repaired")
		return nil
	}

	visited, repaired, err := projection.RepairAll(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"visited": visited, "repaired": repaired}).Info("Counter repair finished")
	return nil
}
