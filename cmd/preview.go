package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/arnold/kumbara-api/internal/allocation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	flagAmount    string
	flagGoalsFile string
	flagPrecision int32
	flagRemoved   string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show how an amount would be split across a set of goals",
	Long: `Reads goals as a JSON array (from --goals, or stdin when --goals is "-")
and prints the allocation result. With --removed the amount is treated as
funds released by that goal and spread over the others.`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVarP(&flagAmount, "amount", "a", "", "Amount to distribute")
	previewCmd.Flags().StringVarP(&flagGoalsFile, "goals", "g", "-", "JSON file with goals")
	previewCmd.Flags().Int32Var(&flagPrecision, "precision", allocation.DefaultPrecision, "Decimal places kept in each share")
	previewCmd.Flags().StringVar(&flagRemoved, "removed", "", "ID of a deleted goal whose funds are being redistributed")
	_ = previewCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, _ []string) error {
	amount, err := decimal.NewFromString(flagAmount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", flagAmount, err)
	}

	var in io.Reader = cmd.InOrStdin()
	if flagGoalsFile != "-" {
		f, err := os.Open(flagGoalsFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var goals []allocation.Goal
	if err := json.NewDecoder(in).Decode(&goals); err != nil {
		return fmt.Errorf("decode goals: %w", err)
	}

	alloc := allocation.New(allocation.WithPrecision(flagPrecision))

	var res allocation.Result
	if flagRemoved != "" {
		removedID, err := uuid.Parse(flagRemoved)
		if err != nil {
			return fmt.Errorf("invalid goal id %q: %w", flagRemoved, err)
		}
		res, err = alloc.Redistribute(amount, removedID, goals)
		if err != nil {
			return err
		}
	} else {
		res, err = alloc.Distribute(amount, goals)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		allocation.Result
		Distributed decimal.Decimal   `json:"distributed"`
		Goals       []allocation.Goal `json:"goals"`
	}{
		Result:      res,
		Distributed: res.Distributed(),
		Goals:       res.Updated,
	})
}
