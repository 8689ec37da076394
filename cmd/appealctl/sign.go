package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ticketfight/appeal-service/internal/service/webhook"
)

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [payload.json]",
		Short: "Sign a webhook payload, or send it signed with --url",
		Long: `Computes the t=<unix>,v1=<hex> signature header for a payload read from
the file argument or stdin. With --url the payload is POSTed with the header
set, which is how to replay a checkout event against a local server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			carrier, _ := cmd.Flags().GetBool("carrier")
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = cfg.Webhook.PaymentSecret
				if carrier {
					secret = cfg.Webhook.CarrierSecret
				}
			}
			if secret == "" {
				return fmt.Errorf("no signing secret: pass --secret or configure the webhook secret")
			}

			body, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			header := webhook.NewVerifier(secret, 0).Sign(body, time.Now())

			url, _ := cmd.Flags().GetString("url")
			if url == "" {
				fmt.Fprintln(cmd.OutOrStdout(), header)
				return nil
			}
			name := "Stripe-Signature"
			if carrier {
				name = "Carrier-Signature"
			}
			return post(cmd, url, name, header, body)
		},
	}
	cmd.Flags().String("secret", "", "Signing secret (defaults to the configured webhook secret)")
	cmd.Flags().Bool("carrier", false, "Sign as a carrier tracking webhook")
	cmd.Flags().String("url", "", "POST the signed payload to this URL")
	return cmd
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(cmd.InOrStdin())
}

func post(cmd *cobra.Command, url, header, value string, body []byte) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, value)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", resp.Status, bytes.TrimSpace(out))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with %s", resp.Status)
	}
	return nil
}
