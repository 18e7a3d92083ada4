package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/splax/hackhub/pkg/api/client"
)

// credentialFunc matches the method expressions (*Client).Signup and (*Client).Login.
type credentialFunc func(c *apiclient.Client, ctx context.Context, email, password string) (apiclient.LoginResponse, error)

func (a *app) signupCmd() *cobra.Command {
	return a.credentialCmd("signup", "Create an account and store its session", (*apiclient.Client).Signup)
}

func (a *app) loginCmd() *cobra.Command {
	return a.credentialCmd("login", "Log in and store the session", (*apiclient.Client).Login)
}

func (a *app) credentialCmd(use, short string, call credentialFunc) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			secret, err := a.readPassword(password)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			resp, err := call(c, ctx, email, secret)
			if err != nil {
				return err
			}
			if err := a.saveSession(resp.Tokens); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s successful as %s\n", use, resp.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (supply to avoid prompt)")
	return cmd
}

// readPassword prompts without echo on a terminal and reads a line otherwise.
func (a *app) readPassword(flagValue string) (string, error) {
	if secret := strings.TrimSpace(flagValue); secret != "" {
		return secret, nil
	}
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.out, "Password: ")
		bytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(bytes), nil
	}
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
