package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/starkville/storefront/internal/domain/transaction"
	"github.com/starkville/storefront/internal/infrastructure/observability"
	"github.com/starkville/storefront/internal/storefront"
)

func checkoutCmd(flags *globalFlags) *cobra.Command {
	var (
		phone   string
		items   []string
		noWatch bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Pay for merch items and wait for the M-Pesa result",
		Example: `  storefront checkout --phone 0712345678 \
    --item hoodie:"Starkville Hoodie":2400:1 --item cap:Cap:850:2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cart := storefront.NewCart()
			for _, arg := range items {
				item, err := parseItem(arg)
				if err != nil {
					return err
				}
				cart.Add(item)
			}

			client := storefront.NewClient(flags.server)
			result, err := client.MerchCheckout(cmd.Context(), phone, cart)
			if err != nil {
				return fmt.Errorf("checkout failed: %w", err)
			}

			fmt.Printf("STK push sent to %s for KES %.2f\n", phone, cart.Total())
			fmt.Printf("Order ID: %s\n", result.OrderID)
			if msg, ok := result.Mpesa["CustomerMessage"].(string); ok && msg != "" {
				fmt.Println(msg)
			}
			if noWatch {
				return nil
			}

			fmt.Println("Waiting for payment confirmation on your phone...")
			return watch(cmd, flags, cart, result.OrderID, timeout)
		},
	}

	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Payer phone, e.g. 0712345678 or 254712345678")
	cmd.Flags().StringArrayVarP(&items, "item", "i", nil, "Cart line as id:name:price[:quantity] (repeatable)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Return after the STK push is accepted")
	cmd.Flags().DurationVar(&timeout, "timeout", storefront.DefaultWatchTimeout, "How long to wait for the payment result")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("item")

	return cmd
}

func bookCmd(flags *globalFlags) *cobra.Command {
	var (
		phone   string
		amount  float64
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Pay for an event booking",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := storefront.NewClient(flags.server).BookingPayment(cmd.Context(), phone, amount)
			if err != nil {
				return fmt.Errorf("booking payment failed: %w", err)
			}
			fmt.Printf("Order ID: %s\n", result.OrderID)
			return watch(cmd, flags, nil, result.OrderID, timeout)
		},
	}

	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Payer phone (server test number when empty)")
	cmd.Flags().Float64VarP(&amount, "amount", "a", 0, "Amount in KES (server default when zero)")
	cmd.Flags().DurationVar(&timeout, "timeout", storefront.DefaultWatchTimeout, "How long to wait for the payment result")

	return cmd
}

func watchCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "watch [checkoutID]",
		Short: "Wait for the result of a payment already started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd, flags, nil, args[0], timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", storefront.DefaultWatchTimeout, "How long to wait for the payment result")

	return cmd
}

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [checkoutID]",
		Short: "Show the current state of a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := storefront.NewClient(flags.server).TransactionStatus(cmd.Context(), args[0])
			if err != nil {
				var apiErr *storefront.APIError
				if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
					fmt.Println("Status:  unknown")
					return nil
				}
				return err
			}

			fmt.Printf("Status:  %s\n", view.Status)
			fmt.Printf("Type:    %s\n", view.Type)
			if view.ResultDesc != "" {
				fmt.Printf("Result:  %s\n", view.ResultDesc)
			}
			fmt.Printf("Updated: %s\n", view.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func watch(cmd *cobra.Command, flags *globalFlags, cart *storefront.Cart, checkoutID string, timeout time.Duration) error {
	monitor := storefront.NewMonitor(flags.server, cart, printHandler{},
		storefront.WithWatchTimeout(timeout),
		storefront.WithMonitorLogger(cliLogger(flags)),
	)

	status, err := monitor.Watch(cmd.Context(), checkoutID)
	if errors.Is(err, storefront.ErrWatchTimeout) {
		return fmt.Errorf("no result after %s; check later with: storefront status %s", timeout, checkoutID)
	}
	if err != nil {
		return err
	}
	if status != transaction.StatusSuccess {
		return fmt.Errorf("payment %s", status)
	}
	return nil
}

func cliLogger(flags *globalFlags) zerolog.Logger {
	return observability.InitLogger(flags.logLevel, "console", os.Stderr)
}

// printHandler reports the payment result on stdout.
type printHandler struct{}

func (printHandler) OnSuccess(ev storefront.Event) {
	fmt.Printf("Payment received. Thank you! (%s)\n", ev.CheckoutID)
}

func (printHandler) OnFailed(ev storefront.Event) {
	fmt.Printf("Payment failed: %s. Your cart has been kept, try again.\n", describe(ev))
}

func (printHandler) OnCancelled(ev storefront.Event) {
	fmt.Printf("Payment cancelled: %s. Your cart has been kept.\n", describe(ev))
}

func describe(ev storefront.Event) string {
	if ev.ResultDesc != "" {
		return ev.ResultDesc
	}
	if ev.ResultCode != nil {
		return "result code " + strconv.Itoa(*ev.ResultCode)
	}
	return string(ev.Status)
}

// parseItem reads id:name:price[:quantity].
func parseItem(arg string) (transaction.LineItem, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return transaction.LineItem{}, fmt.Errorf("invalid item %q: want id:name:price[:quantity]", arg)
	}

	price, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || price < 0 {
		return transaction.LineItem{}, fmt.Errorf("invalid price in item %q", arg)
	}

	quantity := 1
	if len(parts) == 4 {
		quantity, err = strconv.Atoi(parts[3])
		if err != nil || quantity <= 0 {
			return transaction.LineItem{}, fmt.Errorf("invalid quantity in item %q", arg)
		}
	}

	return transaction.LineItem{ID: parts[0], Name: parts[1], Price: price, Quantity: quantity}, nil
}
