package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mcpgate/internal/app"
	"mcpgate/internal/gateway"
)

type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ex, ok := err.(ExitCoder); ok {
			os.Exit(ex.ExitCode())
		}
		os.Exit(1)
	}
}

type serviceFactory func() (*app.Service, error)

func newRootCmd() *cobra.Command {
	var configPath string
	var jsonOutput bool

	newSvc := func() (*app.Service, error) {
		return app.New(app.Options{ConfigPath: configPath})
	}

	cmd := &cobra.Command{
		Use:           "mcpgate",
		Short:         "MCP capability registry and security-scanning gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(newServeCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newListCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newLoadCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newEnableCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newDisableCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newApproveCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newAddCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newStatusCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newValidateCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newScanCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newCallCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newToolsCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newProvidersCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newProviderCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newHealthCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newTrustCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newAdminTokenCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionCmd(newSvc, &jsonOutput))

	return cmd
}

func newServeCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, MCP and gRPC health gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return svc.Serve(ctx, func(httpAddr, grpcAddr string) {
				info := map[string]string{"http": httpAddr, "grpc": grpcAddr}
				msg := "listening on " + httpAddr
				if grpcAddr != "" {
					msg += " (grpc health on " + grpcAddr + ")"
				}
				_ = print(*jsonOutput, info, msg)
			})
		},
	}
}

func newStatusCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"doctor", "diag"},
		Short:   "Run diagnostics and summarize the registry",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			st := svc.Status(cmd.Context())
			if *jsonOutput {
				return print(true, st, "")
			}
			state := "healthy"
			if !st.Healthy {
				state = "issues found"
			}
			fmt.Printf("%s: %d providers, %d tools, %d scans recorded\n", state, st.ProvidersLoaded, st.ToolsAvailable, st.ScansRecorded)
			if !st.ScanningEnabled {
				fmt.Println("scanning: disabled")
			}
			for _, status := range sortedKeys(st.Providers) {
				fmt.Printf("  %s: %d\n", status, st.Providers[status])
			}
			for _, m := range st.Manifests {
				fmt.Printf("- %s manifest %s: %d entries, %d enabled\n", m.Group, m.Path, m.Entries, m.Enabled)
			}
			for _, w := range st.Warnings {
				fmt.Printf("- tool %s from %s shadowed by %s\n", w.Tool, w.DroppedProvider, w.KeptProvider)
			}
			for _, f := range st.Findings {
				fmt.Printf("- [%s] %s: %s\n", f.Level, f.Code, f.Message)
			}
			return nil
		},
	}
}

func newHealthCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show gateway health counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.Initialize(cmd.Context()); err != nil {
				return err
			}
			res := svc.Gateway.Health()
			return print(*jsonOutput, res, fmt.Sprintf("%s: %v providers, %v tools (%v)",
				res["status"], res["providers_loaded"], res["tools_available"], res["environment"]))
		},
	}
}

// printResult prints a gateway result, turning failures into a non-zero exit.
func printResult(jsonOutput bool, res gateway.Result, message string) error {
	if !res.OK() {
		if jsonOutput {
			_ = print(true, res, "")
		}
		return &exitError{code: 1, msg: fmt.Sprint(res["error"])}
	}
	return print(jsonOutput, res, message)
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
