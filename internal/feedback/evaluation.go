package feedback

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/fmuoria/voice-interview-agent/internal/models"
)

// Fixed texts of the fallback evaluation
const (
	fallbackComment    = "Unable to evaluate - system error occurred."
	fallbackStrength   = "Interview was completed"
	fallbackAssessment = "A technical error occurred while generating your feedback. Your interview responses were recorded but could not be analyzed. Please contact support or try taking the interview again."
)

var fallbackImprovements = []string{
	"System error prevented feedback generation",
	"Please contact support or retry the interview",
}

// Fallback returns the evaluation stored when scoring fails. It is
// distinguishable from a genuine low score by its texts and the record's
// SystemError flag.
func Fallback() models.Evaluation {
	eval := models.Evaluation{
		TotalScore:          0,
		CategoryScores:      make([]models.CategoryScore, 0, len(models.CategoryNames)),
		Strengths:           []string{fallbackStrength},
		AreasForImprovement: append([]string(nil), fallbackImprovements...),
		FinalAssessment:     fallbackAssessment,
	}
	for _, name := range models.CategoryNames {
		eval.CategoryScores = append(eval.CategoryScores, models.CategoryScore{
			Name:    name,
			Score:   0,
			Comment: fallbackComment,
		})
	}
	return eval
}

// rawEvaluation mirrors the model output with optional fields so missing
// values can be told apart from zeros
type rawEvaluation struct {
	TotalScore     *float64 `json:"totalScore"`
	CategoryScores []struct {
		Name    string   `json:"name"`
		Score   *float64 `json:"score"`
		Comment string   `json:"comment"`
	} `json:"categoryScores"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areasForImprovement"`
	FinalAssessment     string   `json:"finalAssessment"`
}

// parseEvaluation extracts, validates and repairs an evaluation from model output
func parseEvaluation(response string) (models.Evaluation, error) {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return models.Evaluation{}, fmt.Errorf("no JSON found in response")
	}

	var raw rawEvaluation
	if err := json.Unmarshal([]byte(response[startIdx:endIdx+1]), &raw); err != nil {
		return models.Evaluation{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return repair(raw)
}

// repair maps categories onto the fixed rubric order, clamps scores and
// fills a missing total from the category average
func repair(raw rawEvaluation) (models.Evaluation, error) {
	byName := make(map[string]models.CategoryScore, len(raw.CategoryScores))
	for _, c := range raw.CategoryScores {
		canonical, ok := canonicalCategory(c.Name)
		if !ok {
			continue
		}
		if _, dup := byName[canonical]; dup {
			continue
		}
		if c.Score == nil || math.IsNaN(*c.Score) {
			return models.Evaluation{}, fmt.Errorf("category %q has no score", c.Name)
		}
		byName[canonical] = models.CategoryScore{
			Name:    canonical,
			Score:   clampScore(*c.Score),
			Comment: strings.TrimSpace(c.Comment),
		}
	}

	eval := models.Evaluation{
		CategoryScores:      make([]models.CategoryScore, 0, len(models.CategoryNames)),
		Strengths:           cleanList(raw.Strengths),
		AreasForImprovement: cleanList(raw.AreasForImprovement),
		FinalAssessment:     strings.TrimSpace(raw.FinalAssessment),
	}

	var sum float64
	for _, name := range models.CategoryNames {
		c, ok := byName[name]
		if !ok {
			return models.Evaluation{}, fmt.Errorf("missing category %q", name)
		}
		eval.CategoryScores = append(eval.CategoryScores, c)
		sum += c.Score
	}

	if raw.TotalScore == nil || math.IsNaN(*raw.TotalScore) {
		eval.TotalScore = math.Round(sum / float64(len(models.CategoryNames)))
	} else {
		eval.TotalScore = clampScore(*raw.TotalScore)
	}

	if eval.FinalAssessment == "" {
		return models.Evaluation{}, fmt.Errorf("missing final assessment")
	}
	return eval, nil
}

// categoryAliases maps loosely named categories to the rubric names
var categoryAliases = map[string]string{
	"problemsolving":       models.CategoryProblem,
	"culturalandrolefit":   models.CategoryCulturalFit,
	"culturefit":           models.CategoryCulturalFit,
	"confidenceandclarity": models.CategoryConfidence,
}

func categoryKey(name string) string {
	name = strings.ReplaceAll(strings.ToLower(name), "&", "and")
	var sb strings.Builder
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func canonicalCategory(name string) (string, bool) {
	key := categoryKey(name)
	for _, n := range models.CategoryNames {
		if categoryKey(n) == key {
			return n, true
		}
	}
	n, ok := categoryAliases[key]
	return n, ok
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
