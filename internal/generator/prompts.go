package generator

import (
	"fmt"
	"strings"

	"github.com/quizlab/adaptive-backend/internal/models"
)

var difficultyGuidance = map[models.DifficultyLabel]string{
	models.DifficultyEasy: "Easy: recall or direct application of a single idea from the outcome. " +
		"A student who has just met the material should usually answer correctly.",
	models.DifficultyMedium: "Medium: combine two ideas or apply the outcome to an unfamiliar case. " +
		"About half of an average class should answer correctly.",
	models.DifficultyHard: "Hard: multi-step reasoning, edge cases, or transfer to a new context. " +
		"Only students who have mastered the outcome should answer correctly.",
}

func ItemSystemPrompt() string {
	return `You are an experienced assessment writer. You turn a learning outcome into short quiz items that measure whether a student has achieved it.

ITEM RULES:
- Each item tests exactly one idea from the learning outcome
- The prompt is self-contained: no references to "the text above" or to other items
- Multiple-choice items have 4 choices; exactly one is correct
- Distractors are plausible and reflect common misconceptions, not jokes or obviously wrong values
- correct_answer repeats the full text of the correct choice exactly
- Short-answer items (no choices) have a single unambiguous answer of at most five words

EXPLANATIONS:
- 1-3 sentences on why the correct answer is correct

DIFFICULTY:
- Label every item "easy", "medium" or "hard"
- Honour the difficulty requested in the user prompt

You must respond with valid JSON only. No markdown, no explanation outside the JSON.`
}

func BuildItemUserPrompt(req Request) string {
	guidance := difficultyGuidance[req.Difficulty]
	if guidance == "" {
		guidance = difficultyGuidance[models.DifficultyMedium]
	}

	outcome := strings.TrimSpace(req.Outcome)
	if outcome == "" {
		outcome = req.SkillUnit
	}

	return fmt.Sprintf(`Generate exactly %d quiz items.

Skill unit: %s
Learning outcome: %s
Difficulty: %s
%s

Respond with this exact JSON structure:
{
  "items": [
    {
      "prompt": "...",
      "choices": ["...", "...", "...", "..."],
      "correct_answer": "...",
      "explanation": "...",
      "difficulty": "%s"
    }
  ]
}

Requirements:
- Each item must probe a DIFFERENT aspect of the outcome
- Vary the position of the correct choice`,
		req.Count, req.SkillUnit, outcome, string(req.Difficulty), guidance, string(req.Difficulty))
}
