package item

import "strings"

// classifierRules are checked in order; the first rule with a matching
// keyword decides. Order matters: "Lab Quiz" is a quiz.
var classifierRules = []struct {
	kind     Kind
	keywords []string
}{
	{KindExam, []string{"midterm", "final", "exam"}},
	{KindQuiz, []string{"quiz", "test"}},
	{KindLab, []string{"lab"}},
	{KindProject, []string{"project"}},
}

// Classify maps a title to a Kind using case-insensitive substring keywords.
// Titles matching nothing are assignments.
func Classify(title string) Kind {
	t := strings.ToLower(title)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.kind
			}
		}
	}
	return KindAssignment
}
