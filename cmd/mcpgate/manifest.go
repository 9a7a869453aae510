package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mcpgate/internal/app"
	"mcpgate/internal/loader"
)

func newListCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	var group string
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List manifest entries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			entries, err := svc.ListEntries(cmd.Context(), group, enabledOnly)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, entries, "")
			}
			if len(entries) == 0 {
				fmt.Println("no manifest entries")
				return nil
			}
			for _, e := range entries {
				state := "disabled"
				if e.Enabled {
					state = "enabled"
				}
				status := string(e.Status)
				if status == "" {
					status = "unregistered"
				}
				approved := ""
				if e.ApprovedBy != "" {
					approved = " approved_by=" + e.ApprovedBy
				}
				fmt.Printf("- [%s] %s (%s) %s %s tags=%s%s\n", e.Group, e.Key, state, e.URL, status, joinOrDash(e.Tags), approved)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "official|community")
	cmd.Flags().BoolVar(&enabledOnly, "enabled-only", false, "only show enabled entries")
	return cmd
}

func newLoadCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	var scope string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Register enabled manifest entries, scanning where required",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			res, err := svc.Load(cmd.Context(), scope, dryRun)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, res, "")
			}
			for _, e := range res.Entries {
				line := fmt.Sprintf("- [%s] %s", e.Group, e.Key)
				switch {
				case e.Error != "":
					line += " error: " + e.Error
				case dryRun:
					line += " would " + e.Action
				case e.Existing:
					line += " already registered (" + string(e.Status) + ")"
				default:
					line += " -> " + string(e.Status)
				}
				if e.RiskScore != nil {
					line += fmt.Sprintf(" risk=%d", *e.RiskScore)
				}
				fmt.Println(line)
			}
			if dryRun {
				fmt.Printf("dry run: %d entries planned\n", len(res.Entries))
				return nil
			}
			fmt.Printf("loaded: %d providers, %d tools available\n", res.ProvidersLoaded, res.ToolsAvailable)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "all", "all|official|community")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be loaded without writing")
	return cmd
}

func newEnableCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Enable a manifest entry and register it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			res := svc.Gateway.ConfigEnable(cmd.Context(), args[0])
			msg := fmt.Sprint(res["message"])
			if e, ok := res["entry"].(loader.EntryResult); ok && e.Status != "" {
				msg += " (" + string(e.Status) + ")"
			}
			return printResult(*jsonOutput, res, msg)
		},
	}
}

func newDisableCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a manifest entry and drop its provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			res := svc.Gateway.ConfigDisable(cmd.Context(), args[0])
			return printResult(*jsonOutput, res, fmt.Sprint(res["message"]))
		},
	}
}

func newApproveCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	var by string
	var note string
	cmd := &cobra.Command{
		Use:   "approve <name>",
		Short: "Record approval metadata on a manifest entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			approver := strings.TrimSpace(by)
			if approver == "" {
				approver = app.DefaultApprover()
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			summary, err := svc.Loader.Approve(args[0], approver, note)
			if err != nil {
				return err
			}
			return print(*jsonOutput, summary, fmt.Sprintf("approved %s by %s at %s", summary.Key, summary.ApprovedBy, summary.ApprovedAt))
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "approver (defaults to $USER)")
	cmd.Flags().StringVar(&note, "note", "", "approval note")
	return cmd
}

func newAddCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	var req app.AddEntryRequest
	var enabled bool
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add an entry to a manifest, optionally enabling it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			key, err := svc.AddEntry(req)
			if err != nil {
				return err
			}
			group := req.Group
			if group == "" {
				group = "community"
			}
			if !enabled {
				return print(*jsonOutput, map[string]string{"key": key, "group": group, "url": req.URL},
					fmt.Sprintf("added %s to %s manifest (disabled); run 'mcpgate enable %s' to register it", key, group, key))
			}
			res, err := svc.Loader.Enable(cmd.Context(), key)
			if err != nil {
				return fmt.Errorf("added %s to %s manifest but enabling failed: %w", key, group, err)
			}
			return print(*jsonOutput, map[string]any{"key": key, "group": group, "url": req.URL, "entry": res},
				fmt.Sprintf("added %s to %s manifest and enabled it (%s)", key, group, res.Status))
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", false, "enable and register the entry right away")
	cmd.Flags().StringVar(&req.Group, "group", "community", "official|community")
	cmd.Flags().StringVar(&req.Key, "key", "", "manifest key (defaults to the repository name)")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Description, "description", "", "entry description")
	return cmd
}

func newValidateCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:     "validate",
		Aliases: []string{"lint"},
		Short:   "Check manifests against the registration policy",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			report := svc.Loader.Validate(strict)
			if *jsonOutput {
				if err := print(true, report, ""); err != nil {
					return err
				}
			} else {
				for _, issue := range report.Errors {
					fmt.Println("error: " + issue.String())
				}
				for _, issue := range report.Warnings {
					fmt.Println("warning: " + issue.String())
				}
			}
			if !report.OK() {
				return &exitError{code: 2, msg: fmt.Sprintf("MAN_VALIDATION: %d error(s), %d warning(s)", len(report.Errors), len(report.Warnings))}
			}
			if !*jsonOutput {
				fmt.Printf("validation passed with %d warning(s)\n", len(report.Warnings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat unapproved enabled community entries as errors")
	return cmd
}
