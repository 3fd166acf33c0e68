package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ecorpus-go/internal/access"
	"ecorpus-go/internal/app"
	"ecorpus-go/internal/model"
	"ecorpus-go/internal/pointers"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage scene documents",
}

var docPutCmd = &cobra.Command{
	Use:   "put SCENE FILE",
	Short: "Write the next document generation of a scene",
	Long: `Reads a scene document from FILE ("-" for stdin) and writes it as the
next generation. The document's references are checked before it is stored.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "doc.put", func(ctx context.Context, a *app.App, uid int64) error {
			scene := model.ByName(args[0])
			if err := requireAccess(ctx, a, scene, uid, access.Write); err != nil {
				return err
			}

			var r io.Reader = os.Stdin
			if args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}

			var doc pointers.Document
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parsing %s: %w", args[1], err)
			}
			if _, err := pointers.ToPointers(&doc); err != nil {
				return fmt.Errorf("checking %s: %w", args[1], err)
			}

			ref, err := a.Vfs().WriteDoc(ctx, string(data), scene, uid)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s generation %d\n", model.DocumentName, ref.Generation)
			return nil
		})
	},
}

var docGetCmd = &cobra.Command{
	Use:   "get SCENE",
	Short: "Print a document generation of a scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		generation, _ := cmd.Flags().GetInt64("generation")
		deref, _ := cmd.Flags().GetBool("deref")

		return run(cmd, "doc.get", func(ctx context.Context, a *app.App, uid int64) error {
			scene := model.ByName(args[0])
			if err := requireAccess(ctx, a, scene, uid, access.Read); err != nil {
				return err
			}
			s, err := a.DB().GetScene(ctx, scene, uid)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if deref {
				doc, _, err := a.Vfs().GetDerefDoc(ctx, s.ID, generation)
				if err != nil {
					return err
				}
				return enc.Encode(doc)
			}

			doc, err := a.Vfs().GetDoc(ctx, s.ID, generation)
			if err != nil {
				return err
			}
			return enc.Encode(json.RawMessage(doc.Data))
		})
	},
}

var docHistoryCmd = &cobra.Command{
	Use:   "history SCENE",
	Short: "View every document generation of a scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "doc.history", func(ctx context.Context, a *app.App, uid int64) error {
			scene := model.ByName(args[0])
			if err := requireAccess(ctx, a, scene, uid, access.Read); err != nil {
				return err
			}
			s, err := a.DB().GetScene(ctx, scene, uid)
			if err != nil {
				return err
			}
			history, err := a.DB().GetDocHistory(ctx, s.ID)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Println("No documents.")
				return nil
			}

			var table = newTable("ID", "Gen", "Size", "Author", "Created")
			for _, d := range history {
				table.Append([]string{
					formatID(d.ID),
					formatID(d.Generation),
					formatSize(d.Size),
					d.Author,
					formatTime(d.Ctime),
				})
			}
			table.Render()
			return nil
		})
	},
}

func init() {
	docCmd.AddCommand(docPutCmd)
	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docHistoryCmd)

	docGetCmd.Flags().Int64P("generation", "g", 0, "Generation to read (default: latest)")
	docGetCmd.Flags().Bool("deref", false, "Print the nested form with references resolved")
}
