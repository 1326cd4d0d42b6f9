package services

import "sort"

// Catalog is the read-only question bank consumed by the engine. The
// surrounding application owns authoring and seeding.
type Catalog interface {
	ListQuestions() ([]*Question, error)
	GetQuestion(id string) (*Question, error)
	ListOptions(questionID string) ([]*AnswerOption, error)
}

// DeriveQuestionList computes the ordered question-id list an access code of
// the given kind snapshots at creation time: every question for a full
// assessment, priority-1 questions only for a quick one, ordered by display
// order with the id as tiebreak. Pure; later catalog edits never touch
// snapshots already taken from an earlier catalog state.
func DeriveQuestionList(kind AssessmentKind, questions []*Question) []string {
	picked := make([]*Question, 0, len(questions))
	for _, q := range questions {
		if q == nil {
			continue
		}
		if kind == KindQuick && q.Priority != 1 {
			continue
		}
		picked = append(picked, q)
	}
	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].DisplayOrder != picked[j].DisplayOrder {
			return picked[i].DisplayOrder < picked[j].DisplayOrder
		}
		return picked[i].ID < picked[j].ID
	})
	out := make([]string, 0, len(picked))
	for _, q := range picked {
		out = append(out, q.ID)
	}
	return out
}
