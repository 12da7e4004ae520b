package main

import (
	"github.com/spf13/cobra"

	"github.com/quizlab/adaptive-backend/internal/irt"
	"github.com/quizlab/adaptive-backend/internal/models"
)

type estimateInput struct {
	Theta     float64        `json:"theta"`
	Responses []irt.Response `json:"responses"`
}

type estimateOutput struct {
	ThetaBefore   float64  `json:"theta_before"`
	Theta         float64  `json:"theta"`
	StandardError *float64 `json:"standard_error"`
	ExpectedScore float64  `json:"expected_score"`
	CorrectCount  int      `json:"correct_count"`
	ItemCount     int      `json:"item_count"`
}

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "estimate",
		Short:   "Estimate ability from scored responses",
		Example: `  echo '{"theta":0,"responses":[{"difficulty":0,"correct":true},{"difficulty":1,"correct":false}]}' | irtctl estimate`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in estimateInput
			if err := readInput(cmd, &in); err != nil {
				return err
			}
			if err := irt.ValidateTheta(in.Theta); err != nil {
				return err
			}
			if err := irt.ValidateResponses(in.Responses); err != nil {
				return err
			}
			return writeOutput(cmd, estimate(in))
		},
	}
}

func estimate(in estimateInput) estimateOutput {
	theta := irt.EstimateAbility(in.Theta, in.Responses)

	difficulties := make([]float64, len(in.Responses))
	correct := 0
	for i, r := range in.Responses {
		difficulties[i] = r.Difficulty
		if r.Correct {
			correct++
		}
	}

	return estimateOutput{
		ThetaBefore:   in.Theta,
		Theta:         theta,
		StandardError: models.FiniteOrNil(irt.StandardError(theta, difficulties)),
		ExpectedScore: irt.ExpectedScore(theta, difficulties),
		CorrectCount:  correct,
		ItemCount:     len(in.Responses),
	}
}
