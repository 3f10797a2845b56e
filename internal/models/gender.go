package models

import "strings"

// Gender is the closed set of genders recorded on applications and students.
type Gender string

const (
	GenderMale   Gender = "Masculin"
	GenderFemale Gender = "Feminin"
	GenderOther  Gender = "Autre"
)

var genderAliases = map[string]Gender{
	"m":        GenderMale,
	"male":     GenderMale,
	"masculin": GenderMale,
	"garcon":   GenderMale,
	"garçon":   GenderMale,
	"f":        GenderFemale,
	"female":   GenderFemale,
	"feminin":  GenderFemale,
	"féminin":  GenderFemale,
	"fille":    GenderFemale,
	"x":        GenderOther,
	"other":    GenderOther,
	"autre":    GenderOther,
}

// ParseGender maps a raw value onto a Gender. ok is false for unknown input.
func ParseGender(raw string) (Gender, bool) {
	g, ok := genderAliases[strings.ToLower(strings.TrimSpace(raw))]
	return g, ok
}
