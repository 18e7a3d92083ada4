package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apiclient "github.com/splax/hackhub/pkg/api/client"
)

const (
	defaultAPIBase = "http://localhost:4000"
	requestTimeout = 15 * time.Second
)

// app carries state shared by every command.
type app struct {
	v   *viper.Viper
	in  io.Reader
	out io.Writer
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), in: in, out: out}

	root := &cobra.Command{
		Use:           "hackhub",
		Short:         "Hackathon teams, profiles and leaderboard from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().String("api", "", "API base URL (default "+defaultAPIBase+")")
	root.PersistentFlags().String("config", "", "config file (default is $XDG_CONFIG_HOME/hackhub/config.json)")

	root.AddCommand(
		a.signupCmd(),
		a.loginCmd(),
		a.profileCmd(),
		a.teamCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the CLI version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(buildVersion))
			},
		},
	)
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	a.v.SetDefault("api_base_url", defaultAPIBase)
	a.v.SetEnvPrefix("HACKHUB")
	_ = a.v.BindEnv("api_base_url", "HACKHUB_API")
	_ = a.v.BindEnv("access_token", "HACKHUB_TOKEN")
	if flag := cmd.Flags().Lookup("api"); flag != nil && flag.Changed {
		a.v.Set("api_base_url", flag.Value.String())
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return err
		}
	}
	a.v.SetConfigFile(path)
	a.v.SetConfigType("json")
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (a *app) saveSession(tokens apiclient.TokenPair) error {
	a.v.Set("access_token", tokens.AccessToken)
	a.v.Set("refresh_token", tokens.RefreshToken)
	path := a.v.ConfigFileUsed()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := a.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

func (a *app) client() (*apiclient.Client, error) {
	return apiclient.New(a.v.GetString("api_base_url"))
}

func (a *app) token() (string, error) {
	token := strings.TrimSpace(a.v.GetString("access_token"))
	if token == "" {
		return "", errors.New("not logged in; run `hackhub login` first")
	}
	return token, nil
}

// authedCall is a call made with the stored access token.
type authedCall func(ctx context.Context, c *apiclient.Client, token string) error

// session runs call with the stored access token. If the API rejects the
// token it trades the refresh token for a new pair, saves it and retries once.
func (a *app) session(cmd *cobra.Command, call authedCall) error {
	token, err := a.token()
	if err != nil {
		return err
	}
	c, err := a.client()
	if err != nil {
		return err
	}
	err = attempt(cmd, c, token, call)
	var apiErr apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}
	refresh := strings.TrimSpace(a.v.GetString("refresh_token"))
	if refresh == "" {
		return err
	}

	ctx, cancel := withTimeout(cmd)
	tokens, refreshErr := c.Refresh(ctx, refresh)
	cancel()
	if refreshErr != nil {
		return fmt.Errorf("session expired; run `hackhub login` again: %w", refreshErr)
	}
	if err := a.saveSession(tokens); err != nil {
		return err
	}
	return attempt(cmd, c, tokens.AccessToken, call)
}

func attempt(cmd *cobra.Command, c *apiclient.Client, token string, call authedCall) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()
	return call(ctx, c, token)
}

func defaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "hackhub", "config.json"), nil
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, requestTimeout)
}
