package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cuemby/gpubox/pkg/auth"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		admin, _ := cmd.Flags().GetBool("admin")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		role := types.RoleUser
		if admin {
			role = types.RoleAdmin
		}
		user := &types.User{Name: args[0], Email: email, Role: role}
		if err := store.CreateUser(user); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ User %d created (%s, %s)\n", user.ID, user.Name, user.Role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		users, err := store.ListUsers()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tCREATED")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role, u.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Issue an API token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl == 0 {
			ttl = cfg.Auth.TokenTTL
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := store.GetUser(id)
		if err != nil {
			return err
		}
		authn, err := auth.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, store)
		if err != nil {
			return err
		}
		token, err := authn.Mint(user, ttl)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)

	userAddCmd.Flags().String("email", "", "User email")
	userAddCmd.Flags().Bool("admin", false, "Grant the administrator role")

	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default from config)")
}
