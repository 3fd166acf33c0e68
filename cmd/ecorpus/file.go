package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/app"
	localfs "ecorpus-go/internal/fs"
	"ecorpus-go/internal/model"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage scene files",
}

var filePutCmd = &cobra.Command{
	Use:   "put SCENE PATH...",
	Short: "Upload local files as the next generation of scene files",
	Long: `Uploads each PATH into SCENE. A directory uploads its files under their
relative names, skipping entries matched by its .ecorpusignore file.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		mime, _ := cmd.Flags().GetString("mime")
		jobs, _ := cmd.Flags().GetInt("jobs")
		recursive, _ := cmd.Flags().GetBool("recursive")
		scene := model.ByName(args[0])

		var files []localfs.LocalFile
		for _, root := range args[1:] {
			found, err := localfs.Collect(root, recursive)
			if err != nil {
				return err
			}
			files = append(files, found...)
		}
		if len(files) == 0 {
			fmt.Println("No files to upload.")
			return nil
		}

		return run(cmd, "file.put", func(ctx context.Context, a *app.App, uid int64) error {
			if err := requireAccess(ctx, a, scene, uid, access.Write); err != nil {
				return err
			}

			var mu sync.Mutex
			var written []*model.FileProps
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(jobs, 1))
			for _, local := range files {
				g.Go(func() error {
					f, err := os.Open(local.Path)
					if err != nil {
						return err
					}
					defer f.Close()

					props, err := a.Vfs().WriteFile(gctx, f, model.FileParams{
						Scene:  scene,
						Name:   path.Join(dir, local.Name),
						UserID: uid,
						Mime:   mime,
					})
					if err != nil {
						return fmt.Errorf("uploading %s: %w", local.Path, err)
					}
					mu.Lock()
					written = append(written, props)
					mu.Unlock()
					return nil
				})
			}
			err := g.Wait()
			if len(written) > 0 {
				printFiles(written)
			}
			return err
		})
	},
}

var fileGetCmd = &cobra.Command{
	Use:   "get SCENE NAME",
	Short: "Download the current generation of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		generation, _ := cmd.Flags().GetInt64("generation")
		archive, _ := cmd.Flags().GetBool("archive")

		return run(cmd, "file.get", func(ctx context.Context, a *app.App, uid int64) error {
			p := model.FileParams{Scene: model.ByName(args[0]), Name: args[1], UserID: uid, Archive: archive}
			if err := requireAccess(ctx, a, p.Scene, uid, access.Read); err != nil {
				return err
			}

			var body io.ReadCloser
			if generation > 0 {
				history, err := a.DB().GetFileHistory(ctx, p)
				if err != nil {
					return err
				}
				var props *model.FileProps
				for _, h := range history {
					if h.Generation == generation {
						props = h
						break
					}
				}
				if props == nil {
					return fmt.Errorf("%s has no generation %d", args[1], generation)
				}
				if body, err = a.Vfs().Open(ctx, props); err != nil {
					return err
				}
			} else {
				var err error
				if _, body, err = a.Vfs().GetFile(ctx, p); err != nil {
					return err
				}
			}
			defer body.Close()

			var w io.Writer = os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err := io.Copy(w, body)
			return err
		})
	},
}

var fileListCmd = &cobra.Command{
	Use:   "ls SCENE",
	Short: "List the files of a scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archived, _ := cmd.Flags().GetBool("archived")
		folders, _ := cmd.Flags().GetBool("folders")

		return run(cmd, "file.ls", func(ctx context.Context, a *app.App, uid int64) error {
			scene := model.ByName(args[0])
			if err := requireAccess(ctx, a, scene, uid, access.Read); err != nil {
				return err
			}

			var files []*model.FileProps
			var err error
			if folders {
				files, err = a.DB().ListFolders(ctx, scene)
			} else {
				files, err = a.DB().ListFiles(ctx, scene, archived)
			}
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("No files found.")
				return nil
			}
			printFiles(files)
			return nil
		})
	},
}

var fileRemoveCmd = &cobra.Command{
	Use:   "rm SCENE NAME",
	Short: "Delete a file or a folder with its content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "file.rm", func(ctx context.Context, a *app.App, uid int64) error {
			p := model.FileParams{Scene: model.ByName(args[0]), Name: args[1], UserID: uid}
			if err := requireAccess(ctx, a, p.Scene, uid, access.Write); err != nil {
				return err
			}

			current, err := a.DB().GetFileProps(ctx, p)
			if err != nil {
				return err
			}
			if current.IsFolder() {
				if err := a.DB().RemoveFolder(ctx, p); err != nil {
					return err
				}
				fmt.Printf("Removed folder %s\n", args[1])
				return nil
			}

			props, err := a.Vfs().RemoveFile(ctx, p)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %s (generation %d)\n", props.Name, props.Generation)
			return nil
		})
	},
}

var fileMoveCmd = &cobra.Command{
	Use:   "mv SCENE NAME NEXT",
	Short: "Rename a file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "file.mv", func(ctx context.Context, a *app.App, uid int64) error {
			p := model.FileParams{Scene: model.ByName(args[0]), Name: args[1], UserID: uid}
			if err := requireAccess(ctx, a, p.Scene, uid, access.Write); err != nil {
				return err
			}
			props, err := a.Vfs().RenameFile(ctx, p, args[2])
			if err != nil {
				return err
			}
			fmt.Printf("Renamed %s to %s\n", args[1], props.Name)
			return nil
		})
	},
}

var fileHistoryCmd = &cobra.Command{
	Use:   "history SCENE NAME",
	Short: "View every generation of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "file.history", func(ctx context.Context, a *app.App, uid int64) error {
			p := model.FileParams{Scene: model.ByName(args[0]), Name: args[1], UserID: uid}
			if err := requireAccess(ctx, a, p.Scene, uid, access.Read); err != nil {
				return err
			}
			history, err := a.DB().GetFileHistory(ctx, p)
			if err != nil {
				return err
			}
			printFiles(history)
			return nil
		})
	},
}

var fileMkdirCmd = &cobra.Command{
	Use:   "mkdir SCENE NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "file.mkdir", func(ctx context.Context, a *app.App, uid int64) error {
			p := model.FileParams{Scene: model.ByName(args[0]), Name: args[1], UserID: uid}
			if err := requireAccess(ctx, a, p.Scene, uid, access.Write); err != nil {
				return err
			}
			props, err := a.DB().CreateFolder(ctx, p)
			if err != nil {
				return err
			}
			fmt.Printf("Created folder %s\n", props.Name)
			return nil
		})
	},
}

func init() {
	fileCmd.AddCommand(filePutCmd)
	fileCmd.AddCommand(fileGetCmd)
	fileCmd.AddCommand(fileListCmd)
	fileCmd.AddCommand(fileRemoveCmd)
	fileCmd.AddCommand(fileMoveCmd)
	fileCmd.AddCommand(fileHistoryCmd)
	fileCmd.AddCommand(fileMkdirCmd)

	filePutCmd.Flags().String("dir", "", "Scene folder to upload into")
	filePutCmd.Flags().String("mime", "", "Mime type (default: guessed from the name)")
	filePutCmd.Flags().IntP("jobs", "j", 4, "Number of concurrent uploads")
	filePutCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")

	fileGetCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	fileGetCmd.Flags().Int64P("generation", "g", 0, "Generation to read (default: current)")
	fileGetCmd.Flags().Bool("archive", false, "Allow reading a deleted file")

	fileListCmd.Flags().Bool("archived", false, "Include deleted files")
	fileListCmd.Flags().Bool("folders", false, "List folders only")
}
