// Package classify maps subject labels to display categories.
package classify

import (
	"strings"

	"rozklad/internal/model"
)

type rule struct {
	category model.Category
	keywords []string
}

// Order matters: the first rule with a matching keyword wins.
var rules = []rule{
	{model.CategoryLecture, []string{" w1", " w2", "wykład"}},
	{model.CategorySeminar, []string{"sem", "seminarium"}},
	{model.CategoryPractical, []string{"sala", "ćwiczenia"}},
}

// Subject returns the category of a subject label. Matching is a
// case-insensitive substring test; labels matching nothing are CategoryOther.
func Subject(subject string) model.Category {
	s := strings.ToLower(subject)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(s, kw) {
				return r.category
			}
		}
	}
	return model.CategoryOther
}
