package service

import (
	"regexp"
	"strings"
)

// Tuition amounts by program family.
const (
	TuitionEnriched      = 700.0
	TuitionInternational = 800.0
	TuitionSportArts     = 750.0
	TuitionDefault       = 500.0
)

var internationalProgram = regexp.MustCompile(`pei|\bib\b|baccalaur[ée]at international|international baccalaureate`)

// TuitionFor computes the tuition for a program name. Rules are tried in
// order and the first match wins.
func TuitionFor(program string) float64 {
	p := strings.ToLower(program)
	switch {
	case strings.Contains(p, "enrichi") || strings.Contains(p, "enriched"):
		return TuitionEnriched
	case internationalProgram.MatchString(p):
		return TuitionInternational
	case strings.Contains(p, "sport") || strings.Contains(p, "arts"):
		return TuitionSportArts
	default:
		return TuitionDefault
	}
}
