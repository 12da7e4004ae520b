package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quizlab/adaptive-backend/internal/models"
)

type GeneratedBatch struct {
	Items []GeneratedItem `json:"items"`
}

type GeneratedItem struct {
	Prompt        string                 `json:"prompt"`
	Choices       []string               `json:"choices"`
	CorrectAnswer string                 `json:"correct_answer"`
	Explanation   string                 `json:"explanation"`
	Difficulty    models.DifficultyLabel `json:"difficulty"`
}

type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

func ParseResponse(responseBody string) (*GeneratedBatch, error) {
	cleaned := stripCodeFences(responseBody)

	var batch GeneratedBatch
	if err := json.Unmarshal([]byte(cleaned), &batch); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if err := validateBatch(&batch); err != nil {
		return nil, err
	}

	return &batch, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// validateBatch checks structure only: required fields present, the correct
// answer is one of the choices, labels are known.
func validateBatch(batch *GeneratedBatch) error {
	var errs []string

	if len(batch.Items) == 0 {
		return &ValidationError{Errors: []string{"no items in batch"}}
	}

	for i, it := range batch.Items {
		n := i + 1

		if strings.TrimSpace(it.Prompt) == "" {
			errs = append(errs, fmt.Sprintf("item %d: empty prompt", n))
		}
		if strings.TrimSpace(it.CorrectAnswer) == "" {
			errs = append(errs, fmt.Sprintf("item %d: empty correct_answer", n))
		}

		if len(it.Choices) > 0 {
			if len(it.Choices) < 2 {
				errs = append(errs, fmt.Sprintf("item %d: expected at least 2 choices, got %d", n, len(it.Choices)))
			}
			if !containsFold(it.Choices, it.CorrectAnswer) {
				errs = append(errs, fmt.Sprintf("item %d: correct_answer %q is not one of the choices", n, it.CorrectAnswer))
			}
		}

		if it.Difficulty != "" && !models.ValidDifficultyLabels[it.Difficulty] {
			errs = append(errs, fmt.Sprintf("item %d: invalid difficulty %q", n, it.Difficulty))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func containsFold(choices []string, answer string) bool {
	answer = strings.TrimSpace(answer)
	for _, c := range choices {
		if strings.EqualFold(strings.TrimSpace(c), answer) {
			return true
		}
	}
	return false
}

// SimilarPairs returns index pairs of items whose prompts share more than
// threshold of their keywords (Jaccard). Used to warn about near-duplicates.
func SimilarPairs(items []GeneratedItem, threshold float64) [][2]int {
	if len(items) < 2 {
		return nil
	}

	tokenSets := make([]map[string]bool, len(items))
	for i, it := range items {
		tokenSets[i] = tokenize(it.Prompt)
	}

	var pairs [][2]int
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if jaccardSimilarity(tokenSets[i], tokenSets[j]) > threshold {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(s)) {
		// Skip very short words (articles, prepositions)
		if len(word) > 3 {
			tokens[word] = true
		}
	}
	return tokens
}

func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
