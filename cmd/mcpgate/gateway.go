package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mcpgate/internal/gateway"
	"mcpgate/internal/registry"
	"mcpgate/internal/security"
)

func newScanCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <url>",
		Short: "Run an ad-hoc security scan without registering anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			res := svc.Gateway.Scan(cmd.Context(), args[0])
			if !res.OK() || *jsonOutput {
				return printResult(*jsonOutput, res, "")
			}
			scan, _ := res["scan"].(security.ScanResult)
			fmt.Printf("%s %s\n", scan.SourceLocation, scan.Summary())
			for _, v := range scan.Vulnerabilities {
				loc := ""
				if v.Location != "" {
					loc = " (" + v.Location + ")"
				}
				fmt.Printf("- [%s] %s: %s%s\n", v.Severity, v.Category, v.Message, loc)
			}
			if !scan.Passed {
				return &exitError{code: 2, msg: fmt.Sprintf("SEC_SCAN_FAILED: risk score %d", scan.RiskScore)}
			}
			return nil
		},
	}
}

func newCallCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	var rawParams string
	var timeout float64
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke a registered tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{}
			if strings.TrimSpace(rawParams) != "" {
				if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
					return fmt.Errorf("GW_VALIDATION: --params must be a JSON object: %w", err)
				}
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.Initialize(cmd.Context()); err != nil {
				return err
			}
			res := svc.Gateway.Call(cmd.Context(), args[0], params, timeout)
			if !res.OK() || *jsonOutput {
				return printResult(*jsonOutput, res, "")
			}
			blob, err := json.MarshalIndent(res["result"], "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(blob))
			return nil
		},
	}
	cmd.Flags().StringVar(&rawParams, "params", "", "tool parameters as a JSON object")
	cmd.Flags().Float64Var(&timeout, "timeout", 0, "timeout in seconds (0 waits indefinitely)")
	return cmd
}

func newToolsCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List callable tools",
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
			res := svc.Gateway.ListTools()
			if *jsonOutput {
				return print(true, res, "")
			}
			list, _ := res["tools"].([]registry.Tool)
			for _, t := range list {
				marker := ""
				if !t.Executable {
					marker = " [not executable]"
				}
				fmt.Printf("- %s (%s, %s)%s %s\n", t.Name, t.ProviderName, t.TrustLevel, marker, t.Description)
			}
			fmt.Printf("%d tools\n", len(list))
			return nil
		},
	}
}

func newProvidersCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List indexed and stored providers",
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
			res := svc.Gateway.ListProviders(cmd.Context())
			if !res.OK() || *jsonOutput {
				return printResult(*jsonOutput, res, "")
			}
			list, _ := res["providers"].([]registry.Provider)
			for _, p := range list {
				env := ""
				if len(p.EnvRequired) > 0 && !p.EnvAvailable {
					env = " missing env " + strings.Join(p.EnvRequired, ",")
				}
				fmt.Printf("- %s %s [%s/%s] tools=%d%s\n", p.ID, p.Name, p.TrustLevel, p.Status, len(p.ToolNames), env)
			}
			return nil
		},
	}
}

func newProviderCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	providerCmd := &cobra.Command{Use: "provider", Short: "Register or remove providers directly"}

	var req gateway.AddProviderRequest
	addCmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a provider outside the manifests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URL = args[0]
			req.AddedVia = "cli"
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			res := svc.Gateway.AddProvider(cmd.Context(), req)
			return printResult(*jsonOutput, res, fmt.Sprintf("%v (id %v)", res["message"], res["provider_id"]))
		},
	}
	addCmd.Flags().StringVar(&req.Name, "name", "", "provider name (defaults to the repository name)")
	addCmd.Flags().StringVar(&req.TrustLevel, "trust", "", "OFFICIAL|VERIFIED|COMMUNITY (classified from the url by default)")
	addCmd.Flags().StringVar(&req.Endpoint, "endpoint", "", "running MCP server url")
	addCmd.Flags().StringVar(&req.Transport, "transport", "", "streamable_http|sse")

	removeCmd := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored provider and its scan history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			res := svc.Gateway.RemoveProvider(cmd.Context(), args[0])
			return printResult(*jsonOutput, res, fmt.Sprint(res["message"]))
		},
	}

	providerCmd.AddCommand(addCmd, removeCmd)
	return providerCmd
}

func newTrustCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	trustCmd := &cobra.Command{Use: "trust", Short: "Manage trusted domains"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List trusted domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			domains := svc.TrustedDomains()
			return print(*jsonOutput, domains, strings.Join(domains, "\n"))
		},
	}
	addCmd := &cobra.Command{
		Use:   "add <domain>",
		Short: "Trust a domain or path prefix as OFFICIAL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			changed, err := svc.AddTrustedDomain(args[0])
			if err != nil {
				return err
			}
			msg := "trusted " + args[0]
			if !changed {
				msg = args[0] + " already trusted"
			}
			return print(*jsonOutput, map[string]any{"domain": args[0], "changed": changed}, msg)
		},
	}
	removeCmd := &cobra.Command{
		Use:     "remove <domain>",
		Aliases: []string{"rm"},
		Short:   "Stop trusting a domain",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.RemoveTrustedDomain(args[0]); err != nil {
				return err
			}
			return print(*jsonOutput, map[string]string{"removed": args[0]}, "removed "+args[0])
		},
	}
	trustCmd.AddCommand(listCmd, addCmd, removeCmd)
	return trustCmd
}

func newAdminTokenCmd(newSvc serviceFactory, jsonOutput *bool) *cobra.Command {
	var clearToken bool
	cmd := &cobra.Command{
		Use:   "admin-token [token]",
		Short: "Set or clear the bearer token required by admin HTTP routes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			}
			if token == "" && !clearToken {
				return fmt.Errorf("DOC_CONFIG_ADMIN: provide a token or --clear")
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.SetAdminToken(token); err != nil {
				return err
			}
			if clearToken {
				return print(*jsonOutput, map[string]bool{"admin_auth": false}, "admin token cleared; admin routes are open")
			}
			return print(*jsonOutput, map[string]bool{"admin_auth": true}, "admin token stored as a bcrypt hash")
		},
	}
	cmd.Flags().BoolVar(&clearToken, "clear", false, "remove the admin token")
	return cmd
}
