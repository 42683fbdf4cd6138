package club

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds case and strips combining marks, so "Émile" matches "emile".
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var sb strings.Builder
	for _, r := range norm.NFD.String(s) {
		if !unicode.Is(unicode.Mn, r) {
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(norm.NFC.String(sb.String())), " ")
}

// containsEitherWay reports whether one normalized string contains the other.
func containsEitherWay(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return na == nb
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// SameBook reports whether a and b look like the same title by the same author.
func SameBook(titleA, authorA, titleB, authorB string) bool {
	return containsEitherWay(titleA, titleB) && containsEitherWay(authorA, authorB)
}

func (b *Book) matches(query string) bool {
	q := Normalize(query)
	if q == "" {
		return false
	}
	for _, field := range []string{b.Title, b.Author, b.Genre} {
		if strings.Contains(Normalize(field), q) {
			return true
		}
	}
	return false
}
