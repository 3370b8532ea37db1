package evalutil

import (
	"math/rand"
	"strings"
)

var affirmations = map[string]struct{}{
	"yes":       {},
	"yeah":      {},
	"yep":       {},
	"ok":        {},
	"okay":      {},
	"sure":      {},
	"of course": {},
	"oui":       {},
	"d'accord":  {},
	"ça marche": {},
}

// IsAffirmation reports whether a user message is a bare agreement.
func IsAffirmation(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ".!")
	_, ok := affirmations[s]
	return ok
}

var stopPhrases = []string{
	"stop",
	"let's stop",
	"i want to stop",
	"that's enough",
	"on arrête",
	"stop the flow",
}

// ContainsStopPhrase reports whether the text carries an explicit request to
// stop the current guided flow.
func ContainsStopPhrase(s string) bool {
	s = strings.ToLower(s)
	for _, p := range stopPhrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// SampleN picks up to n distinct elements from items in random order.
func SampleN(r *rand.Rand, items []string, n int) []string {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	if n > len(items) {
		n = len(items)
	}
	idx := r.Perm(len(items))
	out := make([]string, 0, n)
	for _, i := range idx[:n] {
		out = append(out, items[i])
	}
	return out
}
