package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/store"
)

var (
	badcaseReview string
	badcaseLimit  int
)

var badcasesCmd = &cobra.Command{
	Use:   "badcases",
	Short: "List flagged badcases awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		cases, err := st.ListBadcases(cmd.Context(), store.BadcaseFilter{
			Review: model.ReviewStatus(badcaseReview),
			Limit:  badcaseLimit,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cases)
	},
}

func init() {
	badcasesCmd.Flags().StringVar(&badcaseReview, "review", "", "filter by review status (pending|approved|rejected)")
	badcasesCmd.Flags().IntVar(&badcaseLimit, "limit", 50, "maximum rows to list")
	rootCmd.AddCommand(badcasesCmd)
}
