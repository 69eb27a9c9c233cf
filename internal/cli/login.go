package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lifeline/internal/authclient"
	"github.com/roach88/lifeline/internal/session"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Email    string
	Password string
	AuthURL  string
	NoDemo   bool
}

// LoginResult is the JSON shape of an opened session.
type LoginResult struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Token     string `json:"token,omitempty"`
	Demo      bool   `json:"demo"`
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the auth service",
		Long: `Open a session with the authentication service and print it.

When the service is unreachable the demo accounts (demo@patient.com and
demo@responder.com, password demo123) still log in unless --no-demo is set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "account email (required)")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "account password (required)")
	cmd.Flags().StringVar(&opts.AuthURL, "auth-url", "", "auth service base URL (default from config)")
	cmd.Flags().BoolVar(&opts.NoDemo, "no-demo", false, "fail instead of opening a demo session when offline")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runLogin(ctx context.Context, opts *LoginOptions, cmd *cobra.Command) error {
	cfg := opts.settings()
	formatter := opts.formatter(cmd)

	baseURL := cfg.Auth.BaseURL
	if opts.AuthURL != "" {
		baseURL = opts.AuthURL
	}
	mgr := session.NewManager(session.Options{
		Auth: authclient.New(authclient.Options{
			BaseURL: baseURL,
			Timeout: cfg.Auth.Timeout,
			Logger:  opts.log(),
		}),
		Clock:        opts.Clock,
		DemoFallback: cfg.Auth.DemoFallback && !opts.NoDemo,
		Logger:       opts.log(),
	})

	s, notice, err := mgr.Login(ctx, opts.Email, opts.Password)
	if err != nil {
		return formatter.Fail("login failed", err)
	}
	defer func() { _, _ = mgr.Logout() }()

	var notices []string
	if notice != "" {
		notices = append(notices, notice)
	}
	result := LoginResult{
		SessionID: s.ID,
		UserID:    s.User.UserID,
		Email:     s.User.Email,
		Name:      s.User.DisplayName(),
		Role:      string(s.Role),
		Token:     s.Token,
		Demo:      s.Demo,
	}

	if formatter.Format == "json" {
		return formatter.Success(result, notices...)
	}
	text := fmt.Sprintf("Logged in as %s (%s)\n  User:    %s\n  Session: %s",
		result.Name, result.Role, result.UserID, result.SessionID)
	if result.Token != "" {
		text += "\n  Token:   " + result.Token
	}
	return formatter.Success(text, notices...)
}
