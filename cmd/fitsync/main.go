// Command fitsync is a terminal client for the gym API built on the offline-first core.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/app"
	"github.com/and161185/fitsync/internal/config"
	"github.com/and161185/fitsync/internal/logging"
	"github.com/and161185/fitsync/internal/model"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var errNotLoggedIn = errors.New("not logged in; run fitsync login")

func main() {
	os.Exit(exitCode())
}

// exitCode runs the command line so that deferred cleanup completes before the process exits.
func exitCode() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		return 1
	}
	return 0
}

// run executes one invocation and always releases what setup opened.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root, rt := newRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := rt.teardown(); err == nil {
		err = cerr
	}
	return err
}

// runtime is what PersistentPreRunE prepares for every command.
type runtime struct {
	v   *viper.Viper
	log *zap.Logger
	app *app.App
}

func newRootCommand() (*cobra.Command, *runtime) {
	rt := &runtime{v: viper.New()}
	var configFile string

	root := &cobra.Command{
		Use:          "fitsync",
		Short:        "Gym client with offline training plans and executions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.setup(cmd, configFile)
		},
	}
	config.RegisterFlags(root.PersistentFlags())
	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")

	root.AddCommand(
		versionCommand(),
		loginCommand(rt),
		signUpCommand(rt),
		logoutCommand(rt),
		whoamiCommand(rt),
		plansCommand(rt),
		executionsCommand(rt),
		unitCommand(rt),
	)
	return root, rt
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fitsync %s (%s)\n", version, buildDate)
		},
	}
}

func (rt *runtime) setup(cmd *cobra.Command, configFile string) error {
	if err := config.Bind(rt.v, cmd.Flags(), configFile); err != nil {
		return err
	}
	cfg, err := config.Load(rt.v)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	rt.log, rt.app = log, a
	state := a.Auth.Bootstrap(cmd.Context())
	log.Debug("bootstrapped", zap.Stringer("auth", state.Kind()))
	return nil
}

func (rt *runtime) teardown() error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.Close()
	_ = rt.log.Sync()
	rt.app = nil
	return err
}

// currentUser is the authenticated user or errNotLoggedIn.
func (rt *runtime) currentUser() (model.User, error) {
	u, ok := rt.app.Auth.State().User()
	if !ok {
		return model.User{}, errNotLoggedIn
	}
	return u, nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// readSecret returns v, or stdin's first line when v is "-".
func readSecret(in io.Reader, v string) (string, error) {
	if v != "-" {
		return v, nil
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimRight(line, "\r"), nil
}
