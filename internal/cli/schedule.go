package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/core/pricing"
)

var (
	scheduleModel    string
	scheduleBase     int64
	scheduleTreasury int64
	scheduleDecay    float64
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the price disclosure table for the configured pricing model",
	Run:   runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleModel, "model", "", "pricing model override")
	scheduleCmd.Flags().Int64Var(&scheduleBase, "base", 0, "base price override (sats)")
	scheduleCmd.Flags().Int64Var(&scheduleTreasury, "treasury", 0, "initial treasury override")
	scheduleCmd.Flags().Float64Var(&scheduleDecay, "decay", 0, "decay factor override")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	d := cfg.Ledger.Defaults
	if scheduleModel != "" {
		d.PricingModel = domain.PricingModel(scheduleModel)
	}
	if scheduleBase > 0 {
		d.BasePrice = scheduleBase
	}
	if scheduleTreasury > 0 {
		d.Treasury = scheduleTreasury
	}
	if scheduleDecay > 0 {
		d.DecayFactor = scheduleDecay
	}
	if !d.PricingModel.Valid() {
		fmt.Fprintf(os.Stderr, "unknown pricing model %q\n", d.PricingModel)
		os.Exit(1)
	}

	rows := pricing.Schedule(pricing.Params{
		Model:           d.PricingModel,
		BasePrice:       d.BasePrice,
		Treasury:        d.Treasury,
		InitialTreasury: d.Treasury,
		DecayFactor:     d.DecayFactor,
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintf(w, "MODEL %s\tBASE %d\tTREASURY %d\n", d.PricingModel, d.BasePrice, d.Treasury)
	_, _ = fmt.Fprintln(w, "TREASURY\tSOLD %\tPRICE")
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%.2f\t%d\n", row.TreasuryLevel, row.PercentSold, row.Price)
	}
	_ = w.Flush()
}
