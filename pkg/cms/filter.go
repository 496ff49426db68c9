package cms

import (
	"fmt"
	"strings"

	"github.com/mdouchement/unionboard/pkg/structs"
)

// All is the category sentinel that disables categorical filtering.
const All = "all"

// A Query selects records of a snapshot.
type Query struct {
	// Text is matched, case-insensitively, as a substring of any search field.
	Text string
	// Category is matched exactly against the category field. Empty or All matches everything.
	Category string
}

// Filter returns the records of snapshot matching q, in snapshot order.
// The snapshot is never modified.
func Filter[T Entity](kind Kind[T], snapshot []T, q Query) []T {
	text := strings.ToLower(q.Text)
	category := strings.TrimSpace(q.Category)
	if category == All {
		category = ""
	}

	result := make([]T, 0, len(snapshot))
	for _, item := range snapshot {
		if category != "" && !matchCategory(kind, item, category) {
			continue
		}
		if text != "" && !matchText(kind, item, text) {
			continue
		}
		result = append(result, item)
	}
	return result
}

// Prioritize returns a copy of items where the ones matching pred come first.
// The relative order of each group is preserved.
func Prioritize[T any](items []T, pred func(T) bool) []T {
	result := make([]T, 0, len(items))
	var rest []T
	for _, item := range items {
		if pred(item) {
			result = append(result, item)
			continue
		}
		rest = append(rest, item)
	}
	return append(result, rest...)
}

func matchCategory[T Entity](kind Kind[T], item T, category string) bool {
	field := kind.CategoryField()
	if field == "" {
		return true
	}
	return fmt.Sprint(structs.GetField(item, field)) == category
}

func matchText[T Entity](kind Kind[T], item T, text string) bool {
	for _, field := range kind.SearchFields() {
		switch v := structs.GetField(item, field).(type) {
		case string:
			if strings.Contains(strings.ToLower(v), text) {
				return true
			}
		case []string:
			for _, s := range v {
				if strings.Contains(strings.ToLower(s), text) {
					return true
				}
			}
		case fmt.Stringer:
			if strings.Contains(strings.ToLower(v.String()), text) {
				return true
			}
		}
	}
	return false
}
