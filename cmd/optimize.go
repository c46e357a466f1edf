package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/config"
	"github.com/JakeFAU/cardshot/internal/optimize"
)

func newOptimizeCmd() *cobra.Command {
	var source, dest, settings string
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Resizes and re-encodes the source art used by the card pages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			cfg := e.cfg.Optimize
			if source != "" {
				cfg.SourceDir = source
			}
			if dest != "" {
				cfg.DestDir = dest
			}
			if settings != "" {
				cfg.SettingsFile = settings
			}
			return runOptimize(cmd.Context(), cfg, e.logger)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source art directory (overrides optimize.source_dir)")
	cmd.Flags().StringVar(&dest, "dest", "", "output directory (overrides optimize.dest_dir)")
	cmd.Flags().StringVar(&settings, "settings", "", "per-file settings YAML (overrides optimize.settings_file)")
	return cmd
}

func runOptimize(ctx context.Context, cfg config.OptimizeConfig, logger *zap.Logger) error {
	settings, err := optimize.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return err
	}
	var compactor optimize.Compactor
	if pq := optimize.NewPNGQuant(cfg.PNGQuant); pq != nil {
		compactor = pq
	} else if cfg.PNGQuant != "" {
		logger.Warn("pngquant not found, pngs will not be compacted", zap.String("binary", cfg.PNGQuant))
	}
	opt, err := optimize.New(optimize.Config{
		SourceDir:   cfg.SourceDir,
		DestDir:     cfg.DestDir,
		Parallelism: cfg.Parallelism,
	}, settings, compactor, logger)
	if err != nil {
		return err
	}
	results, err := opt.Run(ctx)
	if err != nil {
		return err
	}
	logger.Sugar().Infof("Optimized %d images.", len(results))
	return nil
}
