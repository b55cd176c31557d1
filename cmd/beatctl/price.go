package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maauso/beatstore-api/internal/pricing"
)

func newPriceCmd() *cobra.Command {
	var tiers pricing.Tiers
	var license string

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price beat licenses from a base price and optional tier prices (cents)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var quotes []pricing.Quote
			if license != "" {
				l, err := pricing.ParseLicense(license)
				if err != nil {
					return err
				}
				q, err := pricing.Price(tiers, l)
				if err != nil {
					return err
				}
				quotes = append(quotes, q)
			} else {
				quotes = pricing.PriceAll(tiers)
				if len(quotes) == 0 {
					return pricing.ErrNoPrice
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, q := range quotes {
				note := ""
				if q.Estimated {
					note = "estimated"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", q.License, pricing.FormatCents(q.Amount), note)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int64Var(&tiers.Base, "base", 0, "base price in cents")
	cmd.Flags().Int64Var(&tiers.Basic, "basic", 0, "explicit basic license price in cents")
	cmd.Flags().Int64Var(&tiers.Premium, "premium", 0, "explicit premium license price in cents")
	cmd.Flags().Int64Var(&tiers.Exclusive, "exclusive", 0, "explicit exclusive license price in cents")
	cmd.Flags().StringVarP(&license, "license", "l", "", "price a single license (basic, premium, exclusive)")
	return cmd
}
