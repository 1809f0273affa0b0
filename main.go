package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Tutortoise/rice-leaf-service/config"
	"github.com/Tutortoise/rice-leaf-service/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Process exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitImageNotFound = 2
	exitInvalidImage  = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return exitFailure
	}
	return exitOK
}

type globalFlags struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "riceleaf",
		Short:         "Rice leaf disease classification with test-time augmentation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", os.Getenv("RICELEAF_CONFIG"), "path to a YAML config file")

	root.AddCommand(newServeCommand(flags), newPredictCommand(flags))
	return root
}

// setup loads configuration and builds the logger shared by every command.
func setup(flags *globalFlags) (*config.Config, *zap.Logger, zap.AtomicLevel, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, err
	}
	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, zap.AtomicLevel{}, err
	}
	return cfg, logger, level, nil
}
