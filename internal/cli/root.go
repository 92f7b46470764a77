// Package cli implements the mailmerge command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the command.
const EnvPrefix = "MAILMERGE"

// Config holds the streams and defaults used by the root command.
type Config struct {
	ConfigPath string
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type runtimeState struct {
	configPath string
	v          *viper.Viper
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

type runtimeKey struct{}

// DefaultConfig returns a Config bound to the process streams.
func DefaultConfig() Config {
	return Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// NewRootCommand builds the mailmerge command tree.
func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		v:          newViper(),
		stdin:      cfg.Stdin,
		stdout:     cfg.Stdout,
		stderr:     cfg.Stderr,
	}

	root := &cobra.Command{
		Use:           "mailmerge",
		Short:         "Send personalized email to every row of a CSV file",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.stdin == nil {
				rt.stdin = os.Stdin
			}
			if rt.stdout == nil {
				rt.stdout = os.Stdout
			}
			if rt.stderr == nil {
				rt.stderr = os.Stderr
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))

			if cmd.Name() == "version" {
				return nil
			}
			return rt.loadConfig()
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to a YAML, JSON or TOML config file")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "text", "Log format: text, json")
	root.PersistentFlags().String("log-output", "stderr", "Log output: stdout, stderr or a file path")
	rt.bind(root.PersistentFlags(), map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
		"log.output": "log-output",
	})

	root.AddCommand(
		NewSendCommand(rt),
		NewAuthCommand(rt),
		NewVersionCommand(),
	)

	return root
}

// Execute runs the command tree with args and reports any error on stderr.
// It returns the process exit code.
func Execute(ctx context.Context, cfg Config, args []string) int {
	root := NewRootCommand(cfg)
	root.SetArgs(args)
	if cfg.Stdout != nil {
		root.SetOut(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		root.SetErr(cfg.Stderr)
	}

	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// loadConfig reads the config file, if any. MAILMERGE_CONFIG names one when
// --config is not given.
func (rt *runtimeState) loadConfig() error {
	path := rt.configPath
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path == "" {
		return nil
	}

	rt.v.SetConfigFile(path)
	if err := rt.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// bind maps config keys to flag names.
func (rt *runtimeState) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = rt.v.BindPFlag(key, f)
		}
	}
}
