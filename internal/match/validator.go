package match

import (
	"fmt"
	"sort"
	"strings"
)

// Result is a full cross-validation report for one case.
type Result struct {
	Comparisons  []Comparison `json:"comparisons"`
	Matched      []string     `json:"matched_fields"`
	Mismatched   []string     `json:"mismatched_fields"`
	MatchScore   float64      `json:"match_score"`
	Insufficient bool         `json:"insufficient_data"`
	Explanation  string       `json:"explanation"`
}

// CrossValidate compares every populated form field against the merged
// extracted values. The aggregate score is the mean similarity over all
// populated form fields, so an extracted value that is simply missing
// drags the score down instead of being ignored.
func CrossValidate(form, extracted map[string]string) Result {
	res := Result{
		Comparisons: []Comparison{},
		Matched:     []string{},
		Mismatched:  []string{},
	}

	comparable := 0
	var total float64
	for _, field := range orderedFields(form) {
		formValue := strings.TrimSpace(form[field])
		if formValue == "" {
			continue
		}
		extractedValue := strings.TrimSpace(extracted[field])
		c := Compare(field, formValue, extractedValue)
		res.Comparisons = append(res.Comparisons, c)
		total += c.Similarity
		if extractedValue != "" {
			comparable++
		}
		if c.Matched {
			res.Matched = append(res.Matched, field)
		} else {
			res.Mismatched = append(res.Mismatched, field)
		}
	}

	if len(res.Comparisons) > 0 {
		res.MatchScore = total / float64(len(res.Comparisons))
	}
	res.Insufficient = comparable == 0
	res.Explanation = explain(res)
	return res
}

// orderedFields returns the form's field names in canonical order, with
// any unknown fields appended alphabetically.
func orderedFields(form map[string]string) []string {
	seen := make(map[string]bool, len(form))
	out := make([]string, 0, len(form))
	for _, field := range fieldOrder {
		if _, ok := form[field]; ok {
			out = append(out, field)
			seen[field] = true
		}
	}
	var extra []string
	for field := range form {
		if !seen[field] {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func explain(res Result) string {
	if len(res.Comparisons) == 0 {
		return "no form fields available for comparison"
	}
	if res.Insufficient {
		return "no extracted values available for comparison"
	}
	if len(res.Mismatched) == 0 {
		return fmt.Sprintf("all %d fields matched", len(res.Matched))
	}

	// Worst mismatches first, capped to keep the report readable.
	worst := make([]Comparison, 0, len(res.Comparisons))
	for _, c := range res.Comparisons {
		if !c.Matched {
			worst = append(worst, c)
		}
	}
	sort.Slice(worst, func(i, j int) bool {
		if worst[i].Similarity != worst[j].Similarity {
			return worst[i].Similarity < worst[j].Similarity
		}
		return worst[i].Field < worst[j].Field
	})
	if len(worst) > 3 {
		worst = worst[:3]
	}
	parts := make([]string, 0, len(worst))
	for _, c := range worst {
		if c.Extracted == "" {
			parts = append(parts, fmt.Sprintf("%s missing from extracted data", c.Field))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s differs (similarity %.2f)", c.Field, c.Similarity))
	}
	return fmt.Sprintf("%d of %d fields mismatched: %s",
		len(res.Mismatched), len(res.Comparisons), strings.Join(parts, "; "))
}
