package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/worldtycoon/internal/adapter/http/dto"
	"github.com/iho/worldtycoon/internal/domain"
	"github.com/iho/worldtycoon/internal/infrastructure/auth"
)

func economyCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "economy",
		Short: "Economy commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Show balances and the last tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.SummaryResponse
			if err := request(cmd, opts, http.MethodGet, "/economy/summary", nil, &resp); err != nil {
				return err
			}
			return printJSONTo(cmd.OutOrStdout(), resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tick",
		Short: "Run one income tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.SummaryResponse
			if err := request(cmd, opts, http.MethodPost, "/economy/tick", nil, &resp); err != nil {
				return err
			}
			return printJSONTo(cmd.OutOrStdout(), resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Show tick timing and balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.HealthResponse
			if err := request(cmd, opts, http.MethodGet, "/economy/health", nil, &resp); err != nil {
				return err
			}
			return printJSONTo(cmd.OutOrStdout(), resp)
		},
	})

	var transfer dto.TransferRequest
	transferCmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move coins between owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.TransferResponse
			if err := request(cmd, opts, http.MethodPost, "/economy/transfer", transfer, &resp); err != nil {
				return err
			}
			return printJSONTo(cmd.OutOrStdout(), resp)
		},
	}
	transferCmd.Flags().StringVar(&transfer.FromOwner, "from", "", "Paying owner")
	transferCmd.Flags().StringVar(&transfer.ToOwner, "to", "", "Receiving owner")
	transferCmd.Flags().Int64Var(&transfer.Amount, "amount", 0, "Amount in coins")
	_ = transferCmd.MarkFlagRequired("from")
	_ = transferCmd.MarkFlagRequired("to")
	_ = transferCmd.MarkFlagRequired("amount")
	cmd.AddCommand(transferCmd)

	return cmd
}

func offersCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "Trade offer commands",
	}

	var owner, status, pin string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if owner != "" {
				q.Set("owner", owner)
			}
			if status != "" {
				q.Set("status", status)
			}
			if pin != "" {
				q.Set("pinId", pin)
			}
			path := "/offers"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var offers []dto.OfferResponse
			if err := request(cmd, opts, http.MethodGet, path, nil, &offers); err != nil {
				return err
			}
			return printOffers(cmd.OutOrStdout(), offers)
		},
	}
	listCmd.Flags().StringVar(&owner, "owner", "", "Only offers where owner is buyer or seller")
	listCmd.Flags().StringVar(&status, "status", "", "Only offers in this status")
	listCmd.Flags().StringVar(&pin, "pin", "", "Only offers for this pin")
	cmd.AddCommand(listCmd)

	var create dto.CreateOfferRequest
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a purchase offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.OfferResponse
			if err := request(cmd, opts, http.MethodPost, "/offers", create, &resp); err != nil {
				return err
			}
			return printJSONTo(cmd.OutOrStdout(), resp)
		},
	}
	createCmd.Flags().StringVar(&create.PinID, "pin", "", "Pin to buy")
	createCmd.Flags().StringVar(&create.FromOwner, "from", "", "Buyer")
	createCmd.Flags().StringVar(&create.ToOwner, "to", "", "Seller")
	createCmd.Flags().Int64Var(&create.Amount, "amount", 0, "Price in coins")
	createCmd.Flags().StringVar(&create.Note, "note", "", "Optional note")
	for _, name := range []string{"pin", "from", "to", "amount"} {
		_ = createCmd.MarkFlagRequired(name)
	}
	cmd.AddCommand(createCmd)

	for _, action := range []string{"accept", "reject", "cancel"} {
		cmd.AddCommand(offerTransitionCmd(opts, action))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "gc",
		Short: "Expire stale pending offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.ExpireResponse
			if err := request(cmd, opts, http.MethodPost, "/offers/gc", nil, &resp); err != nil {
				return err
			}
			return printJSONTo(cmd.OutOrStdout(), resp)
		},
	})

	return cmd
}

func offerTransitionCmd(opts *globalOptions, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [offer-id]",
		Short: fmt.Sprintf("%s a pending offer", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.OfferResponse
			path := "/offers/" + url.PathEscape(args[0]) + "/" + action
			if err := request(cmd, opts, http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			return printJSONTo(cmd.OutOrStdout(), resp)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		secret, owner, role string
		ttl                 time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(&domain.User{ID: owner, Role: r})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&secret, "secret", envOr("JWT_SECRET", ""), "Signing secret shared with the server")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner the token acts as")
	cmd.Flags().StringVar(&role, "role", string(domain.RolePlayer), "Role: player or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func request(cmd *cobra.Command, opts *globalOptions, method, path string, body, out any) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return newAPIClient(opts).do(ctx, method, path, body, out)
}

func printOffers(w io.Writer, offers []dto.OfferResponse) error {
	if len(offers) == 0 {
		_, err := fmt.Fprintln(w, "no offers")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPIN\tFROM\tTO\tAMOUNT\tSTATUS\tNOTE")
	for _, o := range offers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncate(o.ID, 12), o.PinID, o.FromOwner, o.ToOwner, o.Amount, o.Status, truncate(o.Note, 24))
	}
	return tw.Flush()
}

func printJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
