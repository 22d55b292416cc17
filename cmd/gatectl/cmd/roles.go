package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upb/report-gate/models"
	"github.com/upb/report-gate/repositories"
	"github.com/upb/report-gate/utils"
)

func newRolesCmd(opts *globalOptions) *cobra.Command {
	rolesCmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage role grants in the identity store",
	}
	rolesCmd.AddCommand(newRolesGrantCmd(opts))
	rolesCmd.AddCommand(newRolesRevokeCmd(opts))
	rolesCmd.AddCommand(newRolesSetCmd(opts))
	rolesCmd.AddCommand(newRolesListCmd(opts))
	return rolesCmd
}

func validateLoginRole(login, role string) error {
	if err := utils.ValidateVar(login, "login", "required,max=255"); err != nil {
		return err
	}
	return utils.ValidateVar(role, "role", "required,max=100")
}

func newRolesGrantCmd(opts *globalOptions) *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "grant <login> <role>",
		Short: "Grant a role to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			login, role := args[0], args[1]
			if err := validateLoginRole(login, role); err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if create {
				_, err := s.repos.Identities.GetByLogin(cmd.Context(), login)
				if errors.Is(err, repositories.ErrNotFound) {
					err = s.repos.Identities.Upsert(cmd.Context(), models.NewUser(login, ""))
				}
				if err != nil {
					return err
				}
			}

			if err := s.repos.Identities.GrantRole(cmd.Context(), login, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", role, login)
			return nil
		},
	}

	cmd.Flags().BoolVar(&create, "create", false, "Create the user if it does not exist")
	return cmd
}

func newRolesRevokeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <login> <role>",
		Short: "Revoke a role from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			login, role := args[0], args[1]
			if err := validateLoginRole(login, role); err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.repos.Identities.RevokeRole(cmd.Context(), login, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s from %s\n", role, login)
			return nil
		},
	}
}

func newRolesSetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <login> [role...]",
		Short: "Replace all roles of a user",
		Long:  "Replace all roles of a user in one transaction. With no roles the user keeps none.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			login, roles := args[0], args[1:]
			for _, role := range roles {
				if err := validateLoginRole(login, role); err != nil {
					return err
				}
			}

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.repos.Identities.ReplaceRoles(cmd.Context(), login, roles); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "roles of %s set to [%s]\n", login, strings.Join(roles, ","))
			return nil
		},
	}
}

func newRolesListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <login>",
		Short: "Show the roles of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			user, err := s.repos.Identities.GetByLogin(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Login:  %s\n", user.Login)
			fmt.Fprintf(out, "Active: %t\n", user.Active)
			fmt.Fprintln(out, "Roles:")
			for _, role := range user.Roles {
				fmt.Fprintf(out, "  - %s\n", role)
			}
			return nil
		},
	}
}
