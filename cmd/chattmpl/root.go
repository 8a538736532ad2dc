package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/chat-template-codecs/internal/config"
	"github.com/tjfontaine/chat-template-codecs/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chattmpl",
	Short: "Chat template codecs for completion-style model servers",
	Long: `chattmpl renders chat histories into the raw prompt text a model family
expects and parses raw completions back into reasoning, visible text and tool
calls. It runs as an HTTP service or as one-shot commands over stdin.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().String("codec.family", "k2", "default model family")
	rootCmd.PersistentFlags().String("codec.effort", "medium", "default reasoning effort (high, medium, low)")
	rootCmd.PersistentFlags().String("log.level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log.format", "json", "log format (json, text)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(familiesCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(keygenCmd)
}
