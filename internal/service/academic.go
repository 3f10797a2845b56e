package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Age bounds for secondary-level admission, inclusive.
const (
	MinSecondaryAge = 12
	MaxSecondaryAge = 17
)

var sessionYear = regexp.MustCompile(`(\d{4})`)

// Substrings match anywhere in the label; words must be a whole word.
var sessionTerms = []struct {
	substrings []string
	words      []string
	month      time.Month
	day        int
}{
	{[]string{"autumn", "automne", "fall"}, nil, time.September, 1},
	{[]string{"winter", "hiver"}, nil, time.January, 15},
	{[]string{"summer"}, []string{"été", "ete"}, time.June, 15},
}

// SessionStart infers the first day of the session named by label, such as
// "Automne 2024". When the label has no year or no known term it returns
// now and false; callers log that fallback.
func SessionStart(label string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(label)
	m := sessionYear.FindStringSubmatch(lower)
	if m == nil {
		return now.UTC(), false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return now.UTC(), false
	}

	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, term := range sessionTerms {
		if containsAny(lower, term.substrings) || hasWord(words, term.words) {
			return time.Date(year, term.month, term.day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return now.UTC(), false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasWord(words, want []string) bool {
	for _, w := range words {
		for _, x := range want {
			if w == x {
				return true
			}
		}
	}
	return false
}

// AgeAt returns the whole years elapsed between dob and ref. The birthday
// counts once it falls on or before ref.
func AgeAt(dob, ref time.Time) int {
	age := ref.Year() - dob.Year()
	if ref.Month() < dob.Month() || (ref.Month() == dob.Month() && ref.Day() < dob.Day()) {
		age--
	}
	return age
}
