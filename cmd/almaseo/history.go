package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"almaseo-go/internal/app"
	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
)

func printSnapshot(s *model.Snapshot) {
	user := "-"
	if s.UserID != nil {
		user = strconv.FormatInt(*s.UserID, 10)
	}
	fmt.Printf("v%-3d #%d  %s  %-7s  user:%s  %d bytes  %s\n",
		s.Version, s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Source, user, s.SizeBytes, s.SnapshotHash[:12])
}

func printFields(fields model.Fields) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %q\n", name, fields[name])
	}
}

func printCaptured(verb string, snap *model.Snapshot, created bool) {
	if !created {
		fmt.Printf("No changes since v%d; nothing %s.\n", snap.Version, verb)
		return
	}
	fmt.Printf("Post %d: v%d %s\n", snap.PostID, snap.Version, verb)
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage SEO metadata history",
}

var historyCaptureCmd = &cobra.Command{
	Use:   "capture POST_ID",
	Short: "Record the post's current SEO fields as a new version",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("HistoryCapture", func(cmd *cobra.Command, args []string, a *app.App) error {
		postID, err := parseID(args[0], "post id")
		if err != nil {
			return err
		}
		snap, created, err := a.History().Capture(cmd.Context(), postID, model.SourceManual)
		if err != nil {
			return err
		}
		printCaptured("captured", snap, created)
		return nil
	}),
}

var historyListCmd = &cobra.Command{
	Use:   "list POST_ID",
	Short: "List a post's versions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("HistoryList", func(cmd *cobra.Command, args []string, a *app.App) error {
		postID, err := parseID(args[0], "post id")
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		snaps, err := a.History().List(cmd.Context(), postID, limit)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No history recorded.")
			return nil
		}
		for _, s := range snaps {
			printSnapshot(s)
		}
		return nil
	}),
}

var historyShowCmd = &cobra.Command{
	Use:   "show SNAPSHOT_ID",
	Short: "Show one version and its fields",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("HistoryShow", func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0], "snapshot id")
		if err != nil {
			return err
		}
		snap, err := a.History().Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		fields, err := seo.DecodeFields(snap.SnapshotJSON)
		if err != nil {
			return err
		}
		fmt.Printf("Post %d\n", snap.PostID)
		printSnapshot(snap)
		printFields(fields)
		return nil
	}),
}

var historyCompareCmd = &cobra.Command{
	Use:   "compare POST_ID FROM_VERSION TO_VERSION",
	Short: "Show the fields that differ between two versions",
	Args:  cobra.ExactArgs(3),
	RunE: withApp("HistoryCompare", func(cmd *cobra.Command, args []string, a *app.App) error {
		postID, err := parseID(args[0], "post id")
		if err != nil {
			return err
		}
		from, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		to, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[2])
		}

		cmp, err := a.History().Compare(cmd.Context(), postID, from, to)
		if err != nil {
			return err
		}
		if len(cmp.Changes) == 0 {
			fmt.Printf("v%d and v%d are identical.\n", from, to)
			return nil
		}
		for _, name := range cmp.Changes {
			fmt.Printf("%s:\n  - %q\n  + %q\n", name, cmp.FromFields[name], cmp.ToFields[name])
		}
		return nil
	}),
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore POST_ID SNAPSHOT_ID",
	Short: "Write a version's fields back to the post",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("HistoryRestore", func(cmd *cobra.Command, args []string, a *app.App) error {
		postID, err := parseID(args[0], "post id")
		if err != nil {
			return err
		}
		snapshotID, err := parseID(args[1], "snapshot id")
		if err != nil {
			return err
		}
		res, err := a.History().Restore(cmd.Context(), postID, snapshotID)
		if err != nil {
			return err
		}
		printCaptured("restored", res.Snapshot, res.Created)
		return nil
	}),
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete SNAPSHOT_ID",
	Short: "Delete one version",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("HistoryDelete", func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0], "snapshot id")
		if err != nil {
			return err
		}
		if err := a.History().Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted snapshot #%d\n", id)
		return nil
	}),
}

var historyExportCmd = &cobra.Command{
	Use:   "export SNAPSHOT_ID",
	Short: "Write a version as a portable document to stdout or the archive",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("HistoryExport", func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0], "snapshot id")
		if err != nil {
			return err
		}
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		toArchive, _ := cmd.Flags().GetBool("archive")

		if toArchive {
			name, err := a.Exports().ArchiveSnapshot(cmd.Context(), id, encrypt)
			if err != nil {
				return err
			}
			fmt.Printf("Archived snapshot #%d to %s\n", id, name)
			return nil
		}
		_, err = a.Exports().WriteSnapshot(cmd.Context(), os.Stdout, id, encrypt)
		return err
	}),
}

var historyImportCmd = &cobra.Command{
	Use:   "import POST_ID FILE",
	Short: "Apply an exported document to a post; use - to read stdin",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("HistoryImport", func(cmd *cobra.Command, args []string, a *app.App) error {
		postID, err := parseID(args[0], "post id")
		if err != nil {
			return err
		}

		in := os.Stdin
		if args[1] != "-" {
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("opening document: %w", err)
			}
			defer f.Close()
			in = f
		}

		res, err := a.ImportDocument(cmd.Context(), postID, in, func() (string, error) {
			if in == os.Stdin {
				return "", fmt.Errorf("encrypted documents must be imported from a file")
			}
			return readPassphrase("Passphrase: ")
		})
		if err != nil {
			return printValidation(err)
		}
		printCaptured("imported", res.Snapshot, res.Created)
		return nil
	}),
}

// meta command
var metaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Edit a post's tracked SEO fields",
}

var metaSetCmd = &cobra.Command{
	Use:   "set POST_ID FIELD=VALUE...",
	Short: "Write tracked fields and capture the change",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp("MetaSet", func(cmd *cobra.Command, args []string, a *app.App) error {
		postID, err := parseID(args[0], "post id")
		if err != nil {
			return err
		}
		userID, _ := cmd.Flags().GetInt64("user")

		fields := make(model.Fields, len(args)-1)
		for _, kv := range args[1:] {
			name, value, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return fmt.Errorf("expected FIELD=VALUE, got %q", kv)
			}
			fields[name] = value
		}

		if err := a.SetFields(cmd.Context(), postID, userID, fields); err != nil {
			return printValidation(err)
		}
		fmt.Printf("Updated %d field(s) on post %d\n", len(fields), postID)
		return nil
	}),
}

var metaGetCmd = &cobra.Command{
	Use:   "get POST_ID",
	Short: "Show a post's tracked SEO fields",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("MetaGet", func(cmd *cobra.Command, args []string, a *app.App) error {
		postID, err := parseID(args[0], "post id")
		if err != nil {
			return err
		}
		fields, err := a.History().TrackedFields(cmd.Context(), postID)
		if err != nil {
			return err
		}
		printFields(fields)
		return nil
	}),
}

func init() {
	historyListCmd.Flags().IntP("limit", "n", 0, "Maximum number of versions to show (default: retention cap)")
	historyExportCmd.Flags().Bool("encrypt", false, "Encrypt the document with the configured public key")
	historyExportCmd.Flags().Bool("archive", false, "Store the document in the archive instead of printing it")
	metaSetCmd.Flags().Int64("user", 0, "User ID recorded on the captured version")

	historyCmd.AddCommand(historyCaptureCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCompareCmd)
	historyCmd.AddCommand(historyRestoreCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyImportCmd)

	metaCmd.AddCommand(metaSetCmd)
	metaCmd.AddCommand(metaGetCmd)
}
