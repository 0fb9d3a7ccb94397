// Package main: rentpay pays rents through a rentguard service, signing with a local wallet.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tarancss/rentguard/client"
	"github.com/tarancss/rentguard/wallet"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("RENTPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "rentpay",
		Short:        "Pay rents to landlords through a rentguard service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("api", "http://localhost:3001", "rentguard service url")
	root.PersistentFlags().String("network", "", "pin requests to a network instead of the active one")
	_ = v.BindPFlags(root.PersistentFlags())

	rental := &cobra.Command{
		Use:   "rental <id>",
		Short: "Show a rental and its payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newClient(v).Rental(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return show(cmd, r)
		},
	}

	pay := &cobra.Command{
		Use:   "pay <rental id>",
		Short: "Pay the rent of a rental with the wallet",
		Long: "Pay the rent of a rental with the wallet. The secret seed is read from --secret or RENTPAY_SECRET;\n" +
			"with --signer the keys stay in the signer and the transaction is sent to it for signing.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return payRent(cmd, v, args[0])
		},
	}

	pay.Flags().String("amount", "", "amount to pay, defaults to the monthly rent")
	pay.Flags().String("memo", "", "payment memo, defaults to Rent <rental id>")
	pay.Flags().String("secret", "", "wallet secret seed")
	pay.Flags().String("signer", "", "url of the signer holding the wallet keys")
	_ = v.BindPFlags(pay.Flags())

	root.AddCommand(rental, pay)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newClient(v *viper.Viper) *client.Client {
	return client.New(v.GetString("api"), v.GetString("network"))
}

func show(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// adapter returns the wallet selected by the flags.
func adapter(ctx context.Context, v *viper.Viper, network string) (wallet.Adapter, error) {
	if url := v.GetString("signer"); url != "" {
		return wallet.NewExtension(ctx, wallet.NewSigner(url))
	}

	secret := v.GetString("secret")
	if secret == "" {
		return nil, fmt.Errorf("%w: set --secret, RENTPAY_SECRET or --signer", wallet.ErrWalletUnavailable)
	}

	return wallet.NewManual(secret, network)
}

func payRent(cmd *cobra.Command, v *viper.Viper, rentalID string) error {
	ctx := cmd.Context()
	c := newClient(v)

	info, err := c.Info(ctx)
	if err != nil {
		return err
	}

	w, err := adapter(ctx, v, info.Network)
	if err != nil {
		return err
	}

	var amount decimal.Decimal

	if a := v.GetString("amount"); a != "" {
		if amount, err = decimal.NewFromString(a); err != nil {
			return fmt.Errorf("invalid amount %q: %w", a, err)
		}
	} else {
		r, errR := c.Rental(ctx, rentalID)
		if errR != nil {
			return errR
		}

		amount = r.MonthlyRent
	}

	p, res, err := c.PayRent(ctx, w, rentalID, amount, v.GetString("memo"))
	if err != nil {
		return err
	}

	return show(cmd, map[string]interface{}{"payment": p, "transaction": res})
}
