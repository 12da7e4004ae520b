package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quizlab/adaptive-backend/internal/irt"
)

type selectInput struct {
	Theta float64            `json:"theta"`
	Count int                `json:"count"`
	Items []irt.Item[string] `json:"items"`
}

type selectOutput struct {
	Selected []string             `json:"selected"`
	Ranking  []irt.Ranked[string] `json:"ranking,omitempty"`
}

func newSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "select",
		Short:   "Pick the most informative items for an ability",
		Example: `  irtctl select -i pool.json --rank`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in selectInput
			if err := readInput(cmd, &in); err != nil {
				return err
			}
			if n, _ := cmd.Flags().GetInt("count"); n > 0 {
				in.Count = n
			}
			if err := irt.ValidateTheta(in.Theta); err != nil {
				return err
			}
			if err := irt.ValidateItems(in.Items); err != nil {
				return err
			}
			if in.Count < 0 {
				return fmt.Errorf("count must not be negative, got %d", in.Count)
			}

			out := selectOutput{Selected: irt.SelectAdaptiveItems(in.Theta, in.Items, in.Count)}
			if rank, _ := cmd.Flags().GetBool("rank"); rank {
				out.Ranking = irt.RankItems(in.Theta, in.Items)
			}
			return writeOutput(cmd, out)
		},
	}
	cmd.Flags().Int("count", 0, "Number of items to select (overrides the input's count)")
	cmd.Flags().Bool("rank", false, "Include the full information ranking")
	return cmd
}
