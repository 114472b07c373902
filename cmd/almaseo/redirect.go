package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"almaseo-go/internal/app"
	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
)

func printRedirect(r *model.Redirect) {
	state := "enabled"
	if !r.IsEnabled {
		state = "disabled"
	}
	lastHit := "never"
	if r.LastHit != nil {
		lastHit = r.LastHit.Format("2006-01-02 15:04:05")
	}
	fmt.Printf("#%d  %s -> %s  %d  %s  hits:%d  last:%s\n",
		r.ID, r.Source, r.Target, r.Status, state, r.Hits, lastHit)
}

// printValidation lists field errors one per line; other errors pass through.
func printValidation(err error) error {
	if verr, ok := seo.AsValidationError(err); ok {
		for _, fe := range verr.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %s (%s)\n", fe.Field, fe.Message, fe.Code)
		}
	}
	return err
}

// redirect command
var redirectCmd = &cobra.Command{
	Use:   "redirect",
	Short: "Manage redirects",
}

var redirectAddCmd = &cobra.Command{
	Use:   "add SOURCE TARGET",
	Short: "Create a redirect",
	Args:  cobra.ExactArgs(2),
	RunE: withApp("RedirectAdd", func(cmd *cobra.Command, args []string, a *app.App) error {
		status, _ := cmd.Flags().GetInt("status")
		disabled, _ := cmd.Flags().GetBool("disabled")

		r, err := a.Redirects().Create(cmd.Context(), args[0], args[1], status, !disabled)
		if err != nil {
			return printValidation(err)
		}
		printRedirect(r)
		return nil
	}),
}

var redirectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List redirects",
	RunE: withApp("RedirectList", func(cmd *cobra.Command, args []string, a *app.App) error {
		flags := cmd.Flags()
		filter := model.RedirectFilter{}
		filter.Search, _ = flags.GetString("search")
		filter.Status, _ = flags.GetInt("status")
		filter.OrderBy, _ = flags.GetString("order-by")
		filter.Desc, _ = flags.GetBool("desc")
		filter.Limit, _ = flags.GetInt("limit")
		filter.Offset, _ = flags.GetInt("offset")
		if flags.Changed("enabled") {
			enabled, _ := flags.GetBool("enabled")
			filter.Enabled = &enabled
		}

		page, err := a.Redirects().List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if len(page.Redirects) == 0 {
			fmt.Println("No redirects found.")
			return nil
		}
		for _, r := range page.Redirects {
			printRedirect(r)
		}
		fmt.Printf("Showing %d-%d of %d\n", page.Offset+1, page.Offset+len(page.Redirects), page.Total)
		return nil
	}),
}

var redirectGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a redirect",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("RedirectGet", func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0], "redirect id")
		if err != nil {
			return err
		}
		r, err := a.Redirects().Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		printRedirect(r)
		return nil
	}),
}

var redirectUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change a redirect; only the given flags are applied",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("RedirectUpdate", func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0], "redirect id")
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		var in seo.RedirectInput
		if flags.Changed("source") {
			v, _ := flags.GetString("source")
			in.Source = &v
		}
		if flags.Changed("target") {
			v, _ := flags.GetString("target")
			in.Target = &v
		}
		if flags.Changed("status") {
			v, _ := flags.GetInt("status")
			in.Status = &v
		}
		if flags.Changed("enabled") {
			v, _ := flags.GetBool("enabled")
			in.IsEnabled = &v
		}

		r, err := a.Redirects().Update(cmd.Context(), id, in)
		if err != nil {
			return printValidation(err)
		}
		printRedirect(r)
		return nil
	}),
}

var redirectDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a redirect",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("RedirectDelete", func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0], "redirect id")
		if err != nil {
			return err
		}
		if err := a.Redirects().Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted redirect #%d\n", id)
		return nil
	}),
}

var redirectToggleCmd = &cobra.Command{
	Use:   "toggle ID",
	Short: "Flip a redirect between enabled and disabled",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("RedirectToggle", func(cmd *cobra.Command, args []string, a *app.App) error {
		id, err := parseID(args[0], "redirect id")
		if err != nil {
			return err
		}
		r, err := a.Redirects().Toggle(cmd.Context(), id)
		if err != nil {
			return err
		}
		printRedirect(r)
		return nil
	}),
}

var redirectBulkCmd = &cobra.Command{
	Use:   "bulk enable|disable|delete ID...",
	Short: "Apply an action to several redirects",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp("RedirectBulk", func(cmd *cobra.Command, args []string, a *app.App) error {
		action := seo.BulkAction(args[0])
		switch action {
		case seo.BulkEnable, seo.BulkDisable, seo.BulkDelete:
		default:
			return fmt.Errorf("unknown bulk action %q", args[0])
		}

		ids := make([]int64, 0, len(args)-1)
		for _, raw := range args[1:] {
			id, err := parseID(raw, "redirect id")
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		res, err := a.Redirects().Bulk(cmd.Context(), action, ids)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d succeeded, %d failed\n", action, res.SuccessCount, res.FailedCount)
		return nil
	}),
}

var redirectTestCmd = &cobra.Command{
	Use:   "test PATH",
	Short: "Show what a request for PATH would do, without counting a hit",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("RedirectTest", func(cmd *cobra.Command, args []string, a *app.App) error {
		d, err := a.Matcher().Test(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !d.Redirect {
			fmt.Printf("%s: no redirect (%s)\n", d.Path, d.Reason)
			return nil
		}
		fmt.Printf("%s: %d -> %s (redirect #%d)\n", d.Path, d.Status, d.Location, d.RedirectID)
		return nil
	}),
}

var redirectExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all redirects as CSV to stdout, or store them in the archive",
	RunE: withApp("RedirectExport", func(cmd *cobra.Command, args []string, a *app.App) error {
		toArchive, _ := cmd.Flags().GetBool("archive")
		if !toArchive {
			_, err := a.Redirects().ExportCSV(cmd.Context(), os.Stdout)
			return err
		}

		name, rows, err := a.Exports().ArchiveRedirectsCSV(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Archived %d redirect(s) to %s\n", rows, name)
		return nil
	}),
}

func init() {
	redirectAddCmd.Flags().Int("status", model.StatusPermanent, "HTTP status (301 or 302)")
	redirectAddCmd.Flags().Bool("disabled", false, "Create the redirect disabled")

	redirectListCmd.Flags().String("search", "", "Substring of source or target")
	redirectListCmd.Flags().Int("status", 0, "Only redirects with this status")
	redirectListCmd.Flags().Bool("enabled", true, "Only enabled (true) or disabled (false) redirects")
	redirectListCmd.Flags().String("order-by", "id", "Sort by id, source, hits or created_at")
	redirectListCmd.Flags().Bool("desc", false, "Sort descending")
	redirectListCmd.Flags().IntP("limit", "n", 20, "Maximum number of redirects to show")
	redirectListCmd.Flags().Int("offset", 0, "Number of redirects to skip")

	redirectUpdateCmd.Flags().String("source", "", "New source path")
	redirectUpdateCmd.Flags().String("target", "", "New target path or URL")
	redirectUpdateCmd.Flags().Int("status", 0, "New HTTP status (301 or 302)")
	redirectUpdateCmd.Flags().Bool("enabled", true, "Enable or disable")

	redirectExportCmd.Flags().Bool("archive", false, "Store the CSV in the archive instead of printing it")

	redirectCmd.AddCommand(redirectAddCmd)
	redirectCmd.AddCommand(redirectListCmd)
	redirectCmd.AddCommand(redirectGetCmd)
	redirectCmd.AddCommand(redirectUpdateCmd)
	redirectCmd.AddCommand(redirectDeleteCmd)
	redirectCmd.AddCommand(redirectToggleCmd)
	redirectCmd.AddCommand(redirectBulkCmd)
	redirectCmd.AddCommand(redirectTestCmd)
	redirectCmd.AddCommand(redirectExportCmd)
}
