package core

import "strings"

// ParseQuery reads the line-structured query format:
//
//	line 1   question
//	line 2   separator, ignored
//	line 3.. answer choices, one per line
//
// Surrounding whitespace of the whole text is trimmed first and blank choice
// lines are skipped.
func ParseQuery(text string) (Query, error) {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	q := Query{Question: strings.TrimSpace(lines[0])}
	if q.Question == "" {
		return Query{}, ErrEmptyQuestion
	}
	if len(lines) > 2 {
		for _, line := range lines[2:] {
			if choice := strings.TrimSpace(line); choice != "" {
				q.Choices = append(q.Choices, choice)
			}
		}
	}
	return q, nil
}

// ChoicesBlock renders the choices one per line, in their original order.
func (q Query) ChoicesBlock() string {
	return strings.Join(q.Choices, "\n")
}
