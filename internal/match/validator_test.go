package match

import (
	"strings"
	"testing"
)

func TestCrossValidateAllMatched(t *testing.T) {
	form := map[string]string{
		FieldName:    "Rajesh Kumar Sharma",
		FieldDOB:     "1990-06-15",
		FieldPAN:     "ABCPK1234F",
		FieldAddress: "12 MG Road, Bengaluru",
	}
	extracted := map[string]string{
		FieldName:    "RAJESH KUMAR SHARMA",
		FieldDOB:     "15/06/1990",
		FieldPAN:     "abcpk1234f",
		FieldAddress: "12 M.G. Road Bengaluru",
	}

	res := CrossValidate(form, extracted)
	if len(res.Mismatched) != 0 {
		t.Fatalf("unexpected mismatches: %v", res.Mismatched)
	}
	if res.MatchScore < 0.95 {
		t.Fatalf("match score = %.3f, want near 1.0", res.MatchScore)
	}
	if res.Insufficient {
		t.Fatal("result marked insufficient")
	}
}

func TestCrossValidateMissingFieldLowersScore(t *testing.T) {
	form := map[string]string{
		FieldName: "Rajesh Kumar Sharma",
		FieldPAN:  "ABCPK1234F",
	}
	extracted := map[string]string{
		FieldName: "Rajesh Kumar Sharma",
	}

	res := CrossValidate(form, extracted)
	if res.Insufficient {
		t.Fatal("one comparable field should not be insufficient")
	}
	if res.MatchScore != 0.5 {
		t.Fatalf("match score = %.3f, want 0.5", res.MatchScore)
	}
	if len(res.Mismatched) != 1 || res.Mismatched[0] != FieldPAN {
		t.Fatalf("mismatched = %v, want [pan]", res.Mismatched)
	}
}

func TestCrossValidateEmptyExtractionIsInsufficient(t *testing.T) {
	form := map[string]string{
		FieldName: "Rajesh Kumar Sharma",
		FieldPAN:  "ABCPK1234F",
	}

	res := CrossValidate(form, map[string]string{})
	if !res.Insufficient {
		t.Fatal("expected insufficient data flag")
	}
	if len(res.Comparisons) != 2 {
		t.Fatalf("expected comparisons for every form field, got %d", len(res.Comparisons))
	}
	if res.MatchScore != 0 {
		t.Fatalf("match score = %.3f, want 0", res.MatchScore)
	}
	if !strings.Contains(res.Explanation, "no extracted values") {
		t.Fatalf("unexpected explanation: %q", res.Explanation)
	}
}

func TestCrossValidateEmptyFormHasNoComparisons(t *testing.T) {
	res := CrossValidate(nil, map[string]string{FieldName: "someone"})
	if len(res.Comparisons) != 0 {
		t.Fatalf("expected no comparisons, got %d", len(res.Comparisons))
	}
	if !res.Insufficient {
		t.Fatal("expected insufficient data flag")
	}
}

func TestCrossValidateDeterministicOrder(t *testing.T) {
	form := map[string]string{
		FieldPAN:     "ABCPK1234F",
		FieldName:    "Rajesh",
		FieldDOB:     "1990-06-15",
		FieldAddress: "MG Road",
	}
	want := []string{FieldName, FieldDOB, FieldAddress, FieldPAN}
	for i := 0; i < 10; i++ {
		res := CrossValidate(form, nil)
		for j, c := range res.Comparisons {
			if c.Field != want[j] {
				t.Fatalf("comparison %d = %s, want %s", j, c.Field, want[j])
			}
		}
	}
}

func TestExplanationNamesWorstMismatches(t *testing.T) {
	form := map[string]string{
		FieldName: "Rajesh Kumar Sharma",
		FieldPAN:  "ABCPK1234F",
	}
	extracted := map[string]string{
		FieldName: "Priya Patel",
		FieldPAN:  "XYZAB9999Z",
	}
	res := CrossValidate(form, extracted)
	if !strings.Contains(res.Explanation, "mismatched") {
		t.Fatalf("unexpected explanation: %q", res.Explanation)
	}
}
