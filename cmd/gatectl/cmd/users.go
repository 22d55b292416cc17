package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/repositories"
	"github.com/upb/report-gate/utils"
)

func newUsersCmd(opts *globalOptions) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage identity store users",
	}
	usersCmd.AddCommand(newUsersAddCmd(opts))
	usersCmd.AddCommand(newUsersSetActiveCmd(opts, "enable", true))
	usersCmd.AddCommand(newUsersSetActiveCmd(opts, "disable", false))
	usersCmd.AddCommand(newUsersListCmd(opts))
	return usersCmd
}

func newUsersAddCmd(opts *globalOptions) *cobra.Command {
	var displayName string

	cmd := &cobra.Command{
		Use:   "add <login>",
		Short: "Create or update a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			login := args[0]
			if err := utils.ValidateVar(login, "login", "required,max=255"); err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			user := models.NewUser(login, displayName)
			if existing, err := s.repos.Identities.GetByLogin(cmd.Context(), login); err == nil {
				user.Active = existing.Active
				user.CreatedAt = existing.CreatedAt
				if displayName == "" {
					user.DisplayName = existing.DisplayName
				}
			} else if !errors.Is(err, repositories.ErrNotFound) {
				return err
			}

			if err := s.repos.Identities.Upsert(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", login)
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "Human readable name")
	return cmd
}

func newUsersSetActiveCmd(opts *globalOptions, verb string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <login>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.repos.Identities.SetActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s %sd\n", args[0], verb)
			return nil
		},
	}
}

func newUsersListCmd(opts *globalOptions) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users with their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateVar(limit, "limit", "min=1,max=1000"); err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			users, err := s.repos.Identities.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LOGIN\tACTIVE\tROLES\tDISPLAY NAME")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", u.Login, u.Active, strings.Join(u.Roles, ","), u.DisplayName)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of users")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of users to skip")
	return cmd
}
