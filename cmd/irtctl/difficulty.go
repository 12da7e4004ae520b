package main

import (
	"github.com/spf13/cobra"

	"github.com/quizlab/adaptive-backend/internal/irt"
	"github.com/quizlab/adaptive-backend/internal/models"
)

type difficultyInput struct {
	Responses []bool `json:"responses"`
}

type difficultyOutput struct {
	Difficulty float64                `json:"difficulty"`
	Label      models.DifficultyLabel `json:"label"`
	Responses  int                    `json:"responses"`
	Correct    int                    `json:"correct"`
}

func newDifficultyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "difficulty",
		Short:   "Estimate an item's difficulty from right/wrong outcomes",
		Example: `  echo '{"responses":[true,true,false,true]}' | irtctl difficulty`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in difficultyInput
			if err := readInput(cmd, &in); err != nil {
				return err
			}

			correct := 0
			for _, ok := range in.Responses {
				if ok {
					correct++
				}
			}
			b := irt.EstimateItemDifficulty(in.Responses)
			return writeOutput(cmd, difficultyOutput{
				Difficulty: b,
				Label:      models.LabelForDifficulty(b),
				Responses:  len(in.Responses),
				Correct:    correct,
			})
		},
	}
}
