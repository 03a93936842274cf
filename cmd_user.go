package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lochel/genealogy/database"
	"github.com/lochel/genealogy/models"
	"github.com/lochel/genealogy/repository"
)

var (
	userName     string
	userPassword string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create an account, bypassing the signup cap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := models.ParseRole(userRole)
		if err != nil {
			return err
		}
		if userPassword == "" {
			return fmt.Errorf("--password is required")
		}
		repo, err := openUserRepository()
		if err != nil {
			return err
		}

		user := &models.User{Name: userName, Email: args[0], Role: role}
		if user.Name == "" {
			user.Name = args[0]
		}
		if err := user.SetPassword(userPassword); err != nil {
			return err
		}
		if err := repo.Create(user); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", user.Email, user.Role)
		return nil
	},
}

var userRoleCmd = &cobra.Command{
	Use:   "role <email> <inactive|member|admin>",
	Short: "Change the role of an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := models.ParseRole(args[1])
		if err != nil {
			return err
		}
		repo, err := openUserRepository()
		if err != nil {
			return err
		}
		user, err := repo.GetByEmail(args[0])
		if err != nil {
			return err
		}
		if err := repo.SetRole(user.ID, role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openUserRepository()
		if err != nil {
			return err
		}
		users, err := repo.ListAll()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE")
		for _, u := range users {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role)
		}
		return tw.Flush()
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "display name (defaults to the email)")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
	userAddCmd.Flags().StringVar(&userRole, "role", string(models.RoleMember), "inactive, member or admin")
	userCmd.AddCommand(userAddCmd, userRoleCmd, userListCmd)
}

func openUserRepository() (repository.UserRepository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrateModels(db); err != nil {
		return nil, err
	}
	return repository.NewGormUserRepository(db), nil
}
