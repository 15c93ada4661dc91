package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/memohai/lobby/internal/backend"
	"github.com/memohai/lobby/internal/channels"
	"github.com/memohai/lobby/internal/logger"
	"github.com/memohai/lobby/internal/tui"
	"github.com/memohai/lobby/internal/version"
	"github.com/memohai/lobby/internal/view"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lobby",
		Short:         "Browse public channels and sign in from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CONFIG_PATH or lobby.toml)")

	cmd.AddCommand(
		newListCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newCreateCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}

func runInteractive(parent context.Context, opts *rootOptions) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return runList(parent, opts)
	}
	ctx, cancel := signalContext(parent)
	defer cancel()

	a, err := newApp(opts.configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()

	a.auth.SetPrompt(a.ctrl.SetLoginURL)
	if err := a.ctrl.Mount(ctx); err != nil {
		return err
	}
	defer func() { _ = a.ctrl.Unmount() }()

	ctx = logger.WithContext(ctx, a.logger.With(slog.String("component", "tui")))
	model := tui.NewModel(ctx, a.ctrl)
	defer model.Close()
	final, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}
	if m, ok := final.(tui.Model); ok && m.Selected() != "" {
		fmt.Println(m.Selected())
	}
	return nil
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the public channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), opts)
		},
	}
}

func runList(parent context.Context, opts *rootOptions) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	a, err := newApp(opts.configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.backend.FetchChannels(ctx, channels.PublicOnly(), channels.ByNameAsc())
	if err != nil {
		return fmt.Errorf("fetch channels: %w", err)
	}
	screen := view.Render(view.State{
		Channels:    list,
		HasChannels: true,
		LoggedIn:    a.auth.LoggedIn(),
		Profile:     a.auth.Profile(),
	})
	fmt.Print(screen.Text())
	return nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with the identity provider and sync the backend user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(opts.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Auth.Validate(); err != nil {
				return err
			}
			if a.auth.LoggedIn() {
				fmt.Println("Already logged in; run `lobby logout` first")
				return nil
			}
			if err := a.ctrl.Login(ctx); err != nil {
				return err
			}
			profile := a.ctrl.State().Profile
			if profile != nil {
				fmt.Printf("Logged in as %s\n", profile.Nickname)
			} else {
				fmt.Println("Logged in")
			}
			return nil
		},
	}
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp(opts.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()
			a.ctrl.Logout()
			fmt.Println("Logged out")
			return nil
		},
	}
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var private bool
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a channel",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(_ *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return errors.New("must specify a channel name")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := newApp(opts.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()
			ch, err := a.backend.CreateChannel(ctx, backend.NewChannel{Name: strings.TrimSpace(args[0]), IsPublic: !private})
			if err != nil {
				return fmt.Errorf("create channel: %w", err)
			}
			fmt.Printf("Created channel %s (%s)\n", ch.Name, ch.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&private, "private", false, "create a private channel")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lobby %s\n", version.Get())
		},
	}
}
