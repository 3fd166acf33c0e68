package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/app"
	"ecorpus-go/internal/model"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		admin, _ := cmd.Flags().GetBool("admin")

		return run(cmd, "user.add", func(ctx context.Context, a *app.App, _ int64) error {
			u, err := a.DB().AddUser(ctx, args[0], email, admin)
			if err != nil {
				return err
			}
			fmt.Printf("Added user %s (#%d)\n", u.Username, u.UID)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "user.ls", func(ctx context.Context, a *app.App, _ int64) error {
			users, err := a.DB().GetUsers(ctx)
			if err != nil {
				return err
			}
			var table = newTable("UID", "Username", "Email", "Admin")
			for _, u := range users {
				table.Append([]string{formatID(u.UID), u.Username, u.Email, strconv.FormatBool(u.IsAdministrator)})
			}
			table.Render()
			return nil
		})
	},
}

var userRemoveCmd = &cobra.Command{
	Use:   "rm USERNAME",
	Short: "Remove a user; their scenes and files are reassigned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "user.rm", func(ctx context.Context, a *app.App, _ int64) error {
			u, err := a.DB().GetUserByName(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.DB().RemoveUser(ctx, u.UID); err != nil {
				return err
			}
			fmt.Printf("Removed user %s\n", u.Username)
			return nil
		})
	},
}

var userPatchCmd = &cobra.Command{
	Use:   "set USERNAME",
	Short: "Update a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch model.UserPatch
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			patch.Username = &name
		}
		if cmd.Flags().Changed("email") {
			email, _ := cmd.Flags().GetString("email")
			patch.Email = &email
		}
		if cmd.Flags().Changed("admin") {
			admin, _ := cmd.Flags().GetBool("admin")
			patch.IsAdministrator = &admin
		}

		return run(cmd, "user.set", func(ctx context.Context, a *app.App, _ int64) error {
			u, err := a.DB().GetUserByName(ctx, args[0])
			if err != nil {
				return err
			}
			if u, err = a.DB().PatchUser(ctx, u.UID, patch); err != nil {
				return err
			}
			fmt.Printf("Updated user %s (#%d)\n", u.Username, u.UID)
			return nil
		})
	},
}

// grant command
var grantCmd = &cobra.Command{
	Use:   "grant SCENE USERNAME LEVEL",
	Short: "Set a user's access level on a scene",
	Long: `Sets USERNAME's entry in the permission map of SCENE. LEVEL is one of
none, read, write or admin; "null" removes the entry. The special users
"any" and "default" address every authenticated user and anonymous
requests respectively.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := access.Parse(args[2])
		if err != nil {
			return err
		}
		return run(cmd, "scene.grant", func(ctx context.Context, a *app.App, uid int64) error {
			scene := model.ByName(args[0])
			if err := requireAccess(ctx, a, scene, uid, access.Admin); err != nil {
				return err
			}
			if err := a.DB().Grant(ctx, scene, args[1], level); err != nil {
				return err
			}
			fmt.Printf("Granted %s on %s to %s\n", level, args[0], args[1])
			return nil
		})
	},
}

// access command
var accessCmd = &cobra.Command{
	Use:   "access SCENE [USERNAME]",
	Short: "Resolve the effective access level of a user on a scene",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "scene.access", func(ctx context.Context, a *app.App, uid int64) error {
			name := actingUser
			if len(args) == 2 {
				u, err := a.DB().GetUserByName(ctx, args[1])
				if err != nil {
					return err
				}
				uid, name = u.UID, u.Username
			}
			if name == "" {
				name = "default"
			}
			level, err := a.DB().GetAccessRights(ctx, model.ByName(args[0]), uid)
			if err != nil {
				return err
			}
			fmt.Printf("%s has %s access to %s\n", name, level, args[0])
			return nil
		})
	},
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRemoveCmd)
	userCmd.AddCommand(userPatchCmd)

	userAddCmd.Flags().String("email", "", "Email address")
	userAddCmd.Flags().Bool("admin", false, "Make the user an administrator")

	userPatchCmd.Flags().String("name", "", "New username")
	userPatchCmd.Flags().String("email", "", "New email address")
	userPatchCmd.Flags().Bool("admin", false, "Administrator flag")
}
