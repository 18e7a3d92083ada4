package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apiclient "github.com/splax/hackhub/pkg/api/client"
)

func (a *app) teamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "team",
		Aliases: []string{"teams"},
		Short:   "Browse, create and join teams",
	}
	cmd.AddCommand(
		a.teamListCmd(),
		a.teamMineCmd(),
		a.teamShowCmd(),
		a.teamCreateCmd(),
		a.teamEditCmd(),
		a.teamActionCmd("join", "Join a team", func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, token, id string) error {
			if err := c.JoinTeam(ctx, token, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined %s\n", id)
			return nil
		}),
		a.teamActionCmd("leave", "Leave a team", func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, token, id string) error {
			if err := c.LeaveTeam(ctx, token, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "left %s\n", id)
			return nil
		}),
		a.teamActionCmd("vote", "Vote for a team", func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, token, id string) error {
			votes, err := c.Vote(ctx, token, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d votes\n", id, votes)
			return nil
		}),
		a.teamMembersCmd(),
		a.teamCommentsCmd(),
		a.teamCommentCmd(),
		a.teamImageCmd(),
	)
	return cmd
}

func (a *app) teamListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			teams, err := c.ListTeams(ctx)
			if err != nil {
				return err
			}
			return printTeams(cmd.OutOrStdout(), teams)
		},
	}
}

func (a *app) teamMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "Show teams you belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				teams, err := c.MyTeams(ctx, token)
				if err != nil {
					return err
				}
				return printTeams(cmd.OutOrStdout(), teams)
			})
		},
	}
}

func (a *app) teamShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <team-id>",
		Short: "Show a single team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			team, err := c.GetTeam(ctx, args[0])
			if err != nil {
				return err
			}
			printTeam(cmd.OutOrStdout(), team)
			return nil
		},
	}
}

func (a *app) teamCreateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team with you as captain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				team, err := c.CreateTeam(ctx, token, name, description)
				if err != nil {
					return err
				}
				printTeam(cmd.OutOrStdout(), team)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Team name")
	cmd.Flags().StringVar(&description, "description", "", "Team description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) teamEditCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "edit <team-id>",
		Short: "Rename or redescribe a team you captain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				team, err := c.UpdateTeam(ctx, token, args[0], name, description)
				if err != nil {
					return err
				}
				printTeam(cmd.OutOrStdout(), team)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New team name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

type teamAction func(ctx context.Context, cmd *cobra.Command, c *apiclient.Client, token, teamID string) error

func (a *app) teamActionCmd(use, short string, action teamAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <team-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				return action(ctx, cmd, c, token, args[0])
			})
		},
	}
}

func (a *app) teamMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <team-id>",
		Short: "List a team's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			members, err := c.Members(ctx, args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tNAME\tROLE")
			for _, m := range members {
				name, role := "-", "-"
				if m.Profile != nil {
					name, role = orDash(m.Profile.Name), orDash(m.Profile.Role)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.UserID, name, role)
			}
			return tw.Flush()
		},
	}
}

func (a *app) teamCommentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comments <team-id>",
		Short: "Read a team's comment thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			// Non-members see an empty thread, so an anonymous read is still valid.
			token := strings.TrimSpace(a.v.GetString("access_token"))
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			comments, err := c.Comments(ctx, token, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(comments) == 0 {
				fmt.Fprintln(out, "no comments visible")
				return nil
			}
			for _, cm := range comments {
				fmt.Fprintf(out, "[%s] %s: %s\n", cm.CreatedAt.Local().Format("Jan 02 15:04"), cm.UserID, cm.Content)
			}
			return nil
		},
	}
}

func (a *app) teamCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <team-id> <text...>",
		Short: "Post to a team's comment thread",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				comment, err := c.AddComment(ctx, token, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "posted %s\n", comment.ID)
				return nil
			})
		},
	}
}

func (a *app) teamImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "image <team-id> <file>",
		Short: "Upload a team image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session(cmd, func(ctx context.Context, c *apiclient.Client, token string) error {
				storageID, err := uploadFile(ctx, c, token, args[1])
				if err != nil {
					return err
				}
				team, err := c.AttachTeamImage(ctx, token, args[0], storageID)
				if err != nil {
					return err
				}
				printTeam(cmd.OutOrStdout(), team)
				return nil
			})
		},
	}
}

func printTeams(w io.Writer, teams []apiclient.Team) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tVOTES\tMEMBERS\tNAME\tID")
	for i, t := range teams {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\n", i+1, t.Votes, len(t.Members), t.Name, t.ID)
	}
	return tw.Flush()
}

func printTeam(w io.Writer, t apiclient.Team) {
	fmt.Fprintf(w, "id:          %s\n", t.ID)
	fmt.Fprintf(w, "name:        %s\n", t.Name)
	fmt.Fprintf(w, "description: %s\n", orDash(t.Description))
	fmt.Fprintf(w, "captain:     %s\n", t.CaptainID)
	fmt.Fprintf(w, "members:     %s\n", strings.Join(t.Members, ", "))
	fmt.Fprintf(w, "votes:       %d\n", t.Votes)
	if t.ImageURL != "" {
		fmt.Fprintf(w, "image:       %s\n", t.ImageURL)
	}
}
