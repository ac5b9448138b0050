package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/config"
	"github.com/suPer8Hu/chatapp/internal/models"
	"github.com/suPer8Hu/chatapp/internal/users"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and issue development tokens",
}

var (
	userEmail      string
	userFirstName  string
	userLastName   string
	userExternalID string
	userAdmin      bool
)

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and print a bearer token for it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, gdb, err := bootstrap()
		if err != nil {
			return err
		}
		ext := strings.TrimSpace(userExternalID)
		if ext == "" {
			ext = uuid.NewString()
		}
		u := &models.User{
			Email:          userEmail,
			FirstName:      userFirstName,
			LastName:       userLastName,
			ExternalAuthID: ext,
		}
		if userAdmin {
			u.Role = models.RoleAdmin
		}
		if err := users.NewRepo(gdb).Create(cmd.Context(), u); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "id=%s external_id=%s\n", u.ID, u.ExternalAuthID)
		return printToken(cmd, cfg, u)
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token <external-id>",
	Short: "Print a bearer token for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, gdb, err := bootstrap()
		if err != nil {
			return err
		}
		u, err := users.NewRepo(gdb).GetByExternalAuthID(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}
		return printToken(cmd, cfg, u)
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a user together with their sessions, messages and usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, gdb, err := bootstrap()
		if err != nil {
			return err
		}
		if err := users.NewRepo(gdb).Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
		return nil
	},
}

func printToken(cmd *cobra.Command, cfg config.Config, u *models.User) error {
	token, _, err := auth.Sign(cfg.JWTSecret, cfg.JWTIssuer, u.ExternalAuthID, u.Email, cfg.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email address (required)")
	userCreateCmd.Flags().StringVar(&userFirstName, "first-name", "", "first name")
	userCreateCmd.Flags().StringVar(&userLastName, "last-name", "", "last name")
	userCreateCmd.Flags().StringVar(&userExternalID, "external-id", "", "auth provider subject; generated when empty")
	userCreateCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant the admin role")
	_ = userCreateCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userCreateCmd, userTokenCmd, userDeleteCmd)
}
