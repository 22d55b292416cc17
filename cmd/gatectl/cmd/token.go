package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/upb/report-gate/credentials"
	"github.com/upb/report-gate/utils"
)

// tokenIssueInput is validated before a token is signed
type tokenIssueInput struct {
	Login  string        `validate:"required"`
	Secret string        `validate:"required,min=8"`
	TTL    time.Duration `validate:"gt=0"`
}

func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue tokens for local development",
	}
	tokenCmd.AddCommand(newTokenIssueCmd())
	return tokenCmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		login      string
		roles      []string
		secret     string
		ttl        time.Duration
		issuer     string
		audience   string
		loginClaim string
		rolesClaim string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign an HS256 bearer token",
		Long: `Sign an HS256 token accepted by a gate running with AUTH_TOKEN_MODE=hs256.
The secret defaults to AUTH_JWT_SECRET.`,
		Example: `  gatectl token issue --login jdoe --role ADMIN --ttl 30m`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_JWT_SECRET")
			}
			if loginClaim == "" {
				loginClaim = envOr("AUTH_LOGIN_CLAIM", credentials.DefaultClaimMapping.LoginClaim)
			}
			if rolesClaim == "" {
				rolesClaim = envOr("AUTH_ROLES_CLAIM", credentials.DefaultClaimMapping.RolesClaim)
			}

			if err := utils.ValidateStruct(tokenIssueInput{Login: login, Secret: secret, TTL: ttl}); err != nil {
				return err
			}

			token, err := credentials.IssueToken(secret, credentials.IssueOptions{
				Login:    login,
				Roles:    roles,
				Issuer:   issuer,
				Audience: audience,
				TTL:      ttl,
				Mapping:  credentials.ClaimMapping{LoginClaim: loginClaim, RolesClaim: rolesClaim},
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&login, "login", "", "Login placed in the login claim")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role placed in the roles claim (repeatable)")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret (default from AUTH_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&issuer, "issuer", "", "iss claim")
	cmd.Flags().StringVar(&audience, "audience", "", "aud claim")
	cmd.Flags().StringVar(&loginClaim, "login-claim", "", "Login claim name (default from AUTH_LOGIN_CLAIM)")
	cmd.Flags().StringVar(&rolesClaim, "roles-claim", "", "Roles claim name (default from AUTH_ROLES_CLAIM)")

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
