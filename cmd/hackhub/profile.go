package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	apiclient "github.com/splax/hackhub/pkg/api/client"
)

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit hacker profiles",
	}

	var userID string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show your profile, or another user's with --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			render := func(p *apiclient.Profile) {
				if p == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "no profile yet")
					return
				}
				printProfile(cmd.OutOrStdout(), *p)
			}
			if userID == "" {
				return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
					profile, err := c.GetProfile(ctx, token, "")
					if err != nil {
						return err
					}
					render(profile)
					return nil
				})
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			profile, err := c.GetProfile(ctx, "", userID)
			if err != nil {
				return err
			}
			render(profile)
			return nil
		},
	}
	show.Flags().StringVar(&userID, "user", "", "User ID to look up")

	var name, role string
	update := &cobra.Command{
		Use:   "update",
		Short: "Set your display name and role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				profile, err := c.UpdateProfile(ctx, token, name, role)
				if err != nil {
					return err
				}
				printProfile(cmd.OutOrStdout(), profile)
				return nil
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "Display name")
	update.Flags().StringVar(&role, "role", "", "Role, e.g. backend or design")

	avatar := &cobra.Command{
		Use:   "avatar <file>",
		Short: "Upload an image and set it as your avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				storageID, err := uploadFile(ctx, c, token, args[0])
				if err != nil {
					return err
				}
				profile, err := c.AttachProfileImage(ctx, token, storageID)
				if err != nil {
					return err
				}
				printProfile(cmd.OutOrStdout(), profile)
				return nil
			})
		},
	}

	cmd.AddCommand(show, update, avatar)
	return cmd
}

// uploadFile pushes a local file through a one-time upload target and returns its storage ID.
func uploadFile(ctx context.Context, c *apiclient.Client, token, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType, err := detectContentType(f, path)
	if err != nil {
		return "", err
	}
	target, err := c.RequestUploadTarget(ctx, token)
	if err != nil {
		return "", err
	}
	return c.Upload(ctx, target, contentType, f)
}

func detectContentType(f *os.File, path string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct, nil
	}
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func printProfile(w io.Writer, p apiclient.Profile) {
	fmt.Fprintf(w, "user:  %s\n", p.UserID)
	fmt.Fprintf(w, "name:  %s\n", orDash(p.Name))
	fmt.Fprintf(w, "role:  %s\n", orDash(p.Role))
	if p.ImageURL != "" {
		fmt.Fprintf(w, "image: %s\n", p.ImageURL)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
