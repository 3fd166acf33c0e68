package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/app"
	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
)

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Manage scenes",
}

var sceneCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "scene.create", func(ctx context.Context, a *app.App, uid int64) error {
			id, err := a.Vfs().CreateScene(ctx, args[0], uid)
			if err != nil {
				return err
			}
			fmt.Printf("Created scene %s (#%d)\n", args[0], id)
			return nil
		})
	},
}

var sceneImportCmd = &cobra.Command{
	Use:   "import NAME MODEL.glb",
	Short: "Create a scene around a glTF binary model",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "scene.import", func(ctx context.Context, a *app.App, uid int64) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			id, err := a.Vfs().ImportScene(ctx, args[0], uid, f)
			if err != nil {
				return fmt.Errorf("importing %s: %w", args[1], err)
			}
			fmt.Printf("Imported scene %s (#%d)\n", args[0], id)
			return nil
		})
	},
}

var sceneListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List scenes",
	RunE: func(cmd *cobra.Command, args []string) error {
		match, _ := cmd.Flags().GetString("match")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		orderBy, _ := cmd.Flags().GetString("order")
		desc, _ := cmd.Flags().GetBool("desc")
		all, _ := cmd.Flags().GetBool("all")
		levels, _ := cmd.Flags().GetStringSlice("access")

		q := model.SceneQuery{Match: match, Limit: limit, Offset: offset, OrderBy: orderBy}
		if desc {
			q.OrderDirection = "desc"
		}
		for _, l := range levels {
			level, err := access.Parse(l)
			if err != nil {
				return err
			}
			q.Access = append(q.Access, level)
		}

		return run(cmd, "scene.ls", func(ctx context.Context, a *app.App, uid int64) error {
			var scenes []*model.Scene
			var err error
			if all {
				scenes, err = a.DB().GetAllScenes(ctx, q)
			} else {
				scenes, err = a.DB().GetScenes(ctx, uid, q)
			}
			if err != nil {
				return err
			}
			if len(scenes) == 0 {
				fmt.Println("No scenes found.")
				return nil
			}
			printScenes(scenes)
			return nil
		})
	},
}

var sceneShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a scene and its permissions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "scene.show", func(ctx context.Context, a *app.App, uid int64) error {
			s, err := a.DB().GetScene(ctx, model.ByName(args[0]), uid)
			if err != nil {
				return err
			}
			perms, err := a.DB().GetPermissions(ctx, model.ByID(s.ID))
			if err != nil {
				return err
			}

			fmt.Printf("Scene:    %s (#%d)\n", s.Name, s.ID)
			fmt.Printf("Author:   %s\n", s.Author)
			fmt.Printf("Created:  %s\n", formatTime(s.Ctime))
			fmt.Printf("Modified: %s\n", formatTime(s.Mtime))
			fmt.Printf("Access:   user=%s any=%s default=%s\n\n", s.Access.User, s.Access.Any, s.Access.Default)

			var table = newTable("UID", "User", "Access")
			for _, p := range perms {
				table.Append([]string{formatID(p.UID), p.Username, p.Access.String()})
			}
			table.Render()
			return nil
		})
	},
}

var sceneRemoveCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete a scene with all its files and documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "scene.rm", func(ctx context.Context, a *app.App, uid int64) error {
			if err := requireAccess(ctx, a, model.ByName(args[0]), uid, access.Admin); err != nil {
				return err
			}
			if err := a.Vfs().RemoveScene(ctx, model.ByName(args[0])); err != nil {
				return err
			}
			fmt.Printf("Removed scene %s\n", args[0])
			return nil
		})
	},
}

var sceneArchiveCmd = &cobra.Command{
	Use:   "archive NAME",
	Short: "Hide a scene from everyone but administrators",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "scene.archive", func(ctx context.Context, a *app.App, uid int64) error {
			if err := requireAccess(ctx, a, model.ByName(args[0]), uid, access.Admin); err != nil {
				return err
			}
			if err := a.DB().ArchiveScene(ctx, model.ByName(args[0])); err != nil {
				return err
			}
			fmt.Printf("Archived scene %s\n", args[0])
			return nil
		})
	},
}

var sceneRenameCmd = &cobra.Command{
	Use:   "rename NAME NEXT",
	Short: "Rename a scene",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "scene.rename", func(ctx context.Context, a *app.App, uid int64) error {
			s, err := a.DB().GetScene(ctx, model.ByName(args[0]), uid)
			if err != nil {
				return err
			}
			if err := requireAccess(ctx, a, model.ByID(s.ID), uid, access.Admin); err != nil {
				return err
			}
			if err := a.DB().RenameScene(ctx, s.ID, args[1]); err != nil {
				return err
			}
			fmt.Printf("Renamed scene %s to %s\n", args[0], args[1])
			return nil
		})
	},
}

var sceneHistoryCmd = &cobra.Command{
	Use:   "history NAME",
	Short: "View the combined file and document history of a scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "scene.history", func(ctx context.Context, a *app.App, uid int64) error {
			if err := requireAccess(ctx, a, model.ByName(args[0]), uid, access.Read); err != nil {
				return err
			}
			s, err := a.DB().GetScene(ctx, model.ByName(args[0]), uid)
			if err != nil {
				return err
			}
			entries, err := a.DB().GetSceneHistory(ctx, s.ID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No history.")
				return nil
			}

			var table = newTable("Name", "Gen", "Size", "Author", "Created")
			for _, e := range entries {
				table.Append([]string{
					e.Name,
					formatID(e.Generation),
					formatSize(e.Size),
					e.Author,
					formatTime(e.Ctime),
				})
			}
			table.Render()
			return nil
		})
	},
}

// requireAccess fails unless uid's effective level on scene is at least want.
func requireAccess(ctx context.Context, a *app.App, scene model.SceneRef, uid int64, want access.Level) error {
	level, err := a.DB().GetAccessRights(ctx, scene, uid)
	if err != nil {
		return err
	}
	if !level.AtLeast(want) {
		return errs.Unauthorized("%s access to scene %s required, have %s", want, scene, level)
	}
	return nil
}

func init() {
	sceneCmd.AddCommand(sceneCreateCmd)
	sceneCmd.AddCommand(sceneImportCmd)
	sceneCmd.AddCommand(sceneListCmd)
	sceneCmd.AddCommand(sceneShowCmd)
	sceneCmd.AddCommand(sceneRemoveCmd)
	sceneCmd.AddCommand(sceneArchiveCmd)
	sceneCmd.AddCommand(sceneRenameCmd)
	sceneCmd.AddCommand(sceneHistoryCmd)

	sceneListCmd.Flags().StringP("match", "m", "", "Whitespace separated patterns to match")
	sceneListCmd.Flags().IntP("limit", "n", 0, "Maximum number of scenes to show")
	sceneListCmd.Flags().Int("offset", 0, "Number of scenes to skip")
	sceneListCmd.Flags().String("order", "name", "Sort by name, ctime or mtime")
	sceneListCmd.Flags().Bool("desc", false, "Sort in descending order")
	sceneListCmd.Flags().Bool("all", false, "List every scene regardless of permissions")
	sceneListCmd.Flags().StringSlice("access", nil, "Only scenes where your own entry is one of these levels (none, read, write, admin)")
}
