package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/colorize"
	"github.com/JakeFAU/cardshot/internal/config"
)

func newColorizeCmd() *cobra.Command {
	var source, dest string
	cmd := &cobra.Command{
		Use:   "colorize",
		Short: "Renders tinted copies of the cloak animation frames",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg.Colorize
			if source != "" {
				cfg.SourceDir = source
			}
			if dest != "" {
				cfg.DestDir = dest
			}
			return runColorize(cmd.Context(), cfg, e.logger)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "frame directory (overrides colorize.source_dir)")
	cmd.Flags().StringVar(&dest, "dest", "", "output directory (overrides colorize.dest_dir)")
	return cmd
}

func runColorize(ctx context.Context, cfg config.ColorizeConfig, logger *zap.Logger) error {
	c, err := colorize.New(colorize.Config{
		SourceDir:   cfg.SourceDir,
		DestDir:     cfg.DestDir,
		FirstFrame:  cfg.FirstFrame,
		LastFrame:   cfg.LastFrame,
		Parallelism: cfg.Parallelism,
	}, logger)
	if err != nil {
		return err
	}
	n, err := c.Run(ctx)
	if err != nil {
		return err
	}
	logger.Sugar().Infof("Colorized %d frames.", n)
	logger.Info("Finished. Now run ./bin/transcode_videos")
	return nil
}
