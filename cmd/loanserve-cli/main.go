// loanserve-cli is the operator command line for a running LoanServe
// process: remittance and export runs, DLQ inspection and replay, worker
// status, and webhook management, all over the ops HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	tenantID  string
)

func main() {
	root := &cobra.Command{
		Use:   "loanserve",
		Short: "Operator CLI for the LoanServe back office",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "ops server base URL")
	root.PersistentFlags().StringVar(&tenantID, "tenant", "default", "tenant id")

	root.AddCommand(remitCmd(), exportCmd(), dlqCmd(), workersCmd(), webhooksCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func remitCmd() *cobra.Command {
	var investor, asOf string

	cmd := &cobra.Command{
		Use:   "remit",
		Short: "Remittance operations",
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Run a remittance for one investor",
		RunE: func(_ *cobra.Command, _ []string) error {
			return post("/api/remittances/run", map[string]any{
				"investor_id": investor,
				"as_of":       asOf,
			})
		},
	}
	run.Flags().StringVar(&investor, "investor", "", "investor id (required)")
	run.Flags().StringVar(&asOf, "as-of", "", "as-of date YYYY-MM-DD (default: today)")
	run.MarkFlagRequired("investor")
	cmd.AddCommand(run)
	return cmd
}

func exportCmd() *cobra.Command {
	var loan, template string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export operations",
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Run an export for one loan",
		RunE: func(_ *cobra.Command, _ []string) error {
			return post("/api/exports/run", map[string]any{
				"loan_id":  loan,
				"template": template,
			})
		},
	}
	run.Flags().StringVar(&loan, "loan", "", "loan id (required)")
	run.Flags().StringVar(&template, "template", "custom", "template: fannie, freddie, or custom")
	run.MarkFlagRequired("loan")
	cmd.AddCommand(run)
	return cmd
}

func dlqCmd() *cobra.Command {
	var workerName string
	var preserve bool

	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Dead letter queue operations",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead letters",
		RunE: func(_ *cobra.Command, _ []string) error {
			return get("/api/dlq")
		},
	}
	replay := &cobra.Command{
		Use:   "replay <item-id>",
		Short: "Replay one dead letter through its worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return post("/api/dlq/"+args[0]+"/replay", map[string]any{
				"worker":            workerName,
				"preserve_attempts": preserve,
			})
		},
	}
	replay.Flags().StringVar(&workerName, "worker", "", "worker name (required)")
	replay.Flags().BoolVar(&preserve, "preserve-attempts", false, "keep the attempt counter instead of resetting")
	replay.MarkFlagRequired("worker")
	cmd.AddCommand(list, replay)
	return cmd
}

func workersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "Show worker runtime health",
		RunE: func(_ *cobra.Command, _ []string) error {
			return get("/api/workers")
		},
	}
}

func webhooksCmd() *cobra.Command {
	var url, secret, template string
	var events []string

	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Webhook subscription management",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List webhook subscriptions",
		RunE: func(_ *cobra.Command, _ []string) error {
			return get("/api/webhooks")
		},
	}
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a webhook subscription",
		RunE: func(_ *cobra.Command, _ []string) error {
			return post("/api/webhooks", map[string]any{
				"url":      url,
				"secret":   secret,
				"template": template,
				"events":   events,
			})
		},
	}
	register.Flags().StringVar(&url, "url", "", "delivery URL (required)")
	register.Flags().StringVar(&secret, "secret", "", "HMAC signing secret")
	register.Flags().StringVar(&template, "template", "", "restrict export events to one template")
	register.Flags().StringSliceVar(&events, "events", nil, "event types (required)")
	register.MarkFlagRequired("url")
	register.MarkFlagRequired("events")
	cmd.AddCommand(list, register)
	return cmd
}

func get(path string) error {
	req, err := http.NewRequest("GET", serverURL+path, nil)
	if err != nil {
		return err
	}
	return do(req)
}

func post(path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req)
}

func do(req *http.Request) error {
	req.Header.Set("X-Tenant-ID", tenantID)
	client := &http.Client{Timeout: 60 * time.Second}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
