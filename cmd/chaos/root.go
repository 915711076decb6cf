package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ccc1994/Chaos/config"
)

// Version is stamped by the build.
var Version = "dev"

var bannerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("212")).
	Bold(true)

var noticeStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("242"))

const banner = `
 ▄████▄   ██░ ██  ▄▄▄       ▒█████    ██████
▒██▀ ▀█  ▓██░ ██▒▒████▄    ▒██▒  ██▒▒██    ▒
▒▓█    ▄ ▒██▀▀██░▒██  ▀█▄  ▒██░  ██▒░ ▓██▄
▒▓▓▄ ▄██▒░▓█ ░██ ░██▄▄▄▄██ ▒██   ██░  ▒   ██▒
▒ ▓███▀ ░░▓█▒░██▓ ▓█   ▓██▒░ ████▓▒░▒██████▒▒
`

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "chaos",
		Short: "Multi-role collaborative coding sessions",
		Long:  "Chaos orchestrates a designer, implementer, reviewer, verifier and human proxy over a shared conversation to work through software change requests.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chaos %s\n", Version)
		},
	}
}

// newLogger builds the zap logger from config.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
