package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"schoolreg/internal/models"
)

// Submission is the canonical shape of an admission request after alias
// resolution. Values are trimmed; absent fields are empty.
type Submission struct {
	FirstName      string
	LastName       string
	DateOfBirth    string
	Gender         string
	Address        string
	ParentName     string
	ParentPhone    string
	ParentEmail    string
	Program        string
	Session        string
	SecondaryLevel string
	Status         string
	Notes          string
}

// fieldAliases lists canonical names with their alternate spelling.
var fieldAliases = []struct {
	canonical string
	alternate string
	set       func(*Submission, string)
}{
	{"firstName", "first_name", func(s *Submission, v string) { s.FirstName = v }},
	{"lastName", "last_name", func(s *Submission, v string) { s.LastName = v }},
	{"dateOfBirth", "date_of_birth", func(s *Submission, v string) { s.DateOfBirth = v }},
	{"gender", "sexe", func(s *Submission, v string) { s.Gender = v }},
	{"address", "adresse", func(s *Submission, v string) { s.Address = v }},
	{"parentName", "parent_name", func(s *Submission, v string) { s.ParentName = v }},
	{"parentPhone", "parent_phone", func(s *Submission, v string) { s.ParentPhone = v }},
	{"parentEmail", "parent_email", func(s *Submission, v string) { s.ParentEmail = v }},
	{"program", "programme", func(s *Submission, v string) { s.Program = v }},
	{"session", "academic_session", func(s *Submission, v string) { s.Session = v }},
	{"secondaryLevel", "secondary_level", func(s *Submission, v string) { s.SecondaryLevel = v }},
	{"status", "application_status", func(s *Submission, v string) { s.Status = v }},
	{"notes", "review_notes", func(s *Submission, v string) { s.Notes = v }},
}

// NormalizeSubmission resolves camelCase and snake_case spellings into one
// Submission. The canonical name wins unless its value is empty.
func NormalizeSubmission(raw map[string]any) Submission {
	var s Submission
	for _, f := range fieldAliases {
		v := stringValue(raw[f.canonical])
		if v == "" {
			v = stringValue(raw[f.alternate])
		}
		f.set(&s, v)
	}
	return s
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// requiredFields is checked in order; the first empty one is reported.
var requiredFields = []struct {
	name  string
	value func(*Submission) string
}{
	{"firstName", func(s *Submission) string { return s.FirstName }},
	{"lastName", func(s *Submission) string { return s.LastName }},
	{"dateOfBirth", func(s *Submission) string { return s.DateOfBirth }},
	{"gender", func(s *Submission) string { return s.Gender }},
	{"address", func(s *Submission) string { return s.Address }},
	{"parentName", func(s *Submission) string { return s.ParentName }},
	{"parentPhone", func(s *Submission) string { return s.ParentPhone }},
	{"program", func(s *Submission) string { return s.Program }},
	{"session", func(s *Submission) string { return s.Session }},
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// ParseDateOfBirth accepts ISO dates with or without a time part and
// returns the calendar date at UTC midnight.
func ParseDateOfBirth(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, models.NewInvalidDateOfBirthError(raw)
}

// hasSecondaryLevel reports whether the flag is present. Explicit negatives
// count as absent.
func hasSecondaryLevel(v string) bool {
	switch strings.ToLower(v) {
	case "", "false", "0", "no", "non", "null":
		return false
	}
	return true
}

// Validate checks s and builds a pending Application. Checks run in this
// order: date of birth format, required fields, secondary age, enums.
func (s Submission) Validate(now time.Time) (*models.Application, error) {
	var dob time.Time
	if s.DateOfBirth != "" {
		parsed, err := ParseDateOfBirth(s.DateOfBirth)
		if err != nil {
			return nil, err
		}
		dob = parsed
	}

	for _, f := range requiredFields {
		if f.value(&s) == "" {
			return nil, models.NewMissingFieldError(f.name)
		}
	}

	var secondary *string
	if hasSecondaryLevel(s.SecondaryLevel) {
		start, _ := SessionStart(s.Session, now)
		age := AgeAt(dob, start)
		if age < MinSecondaryAge || age > MaxSecondaryAge {
			return nil, models.NewInvalidAgeForSecondaryError(age)
		}
		level := s.SecondaryLevel
		secondary = &level
	}

	gender, ok := models.ParseGender(s.Gender)
	if !ok {
		return nil, models.NewInvalidEnumValueError("gender", s.Gender)
	}
	if s.Status != "" {
		if !models.ApplicationStatus(strings.ToLower(s.Status)).Valid() {
			return nil, models.NewInvalidEnumValueError("status", s.Status)
		}
	}

	return &models.Application{
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		DateOfBirth:    dob,
		Gender:         gender,
		Address:        s.Address,
		ParentName:     s.ParentName,
		ParentPhone:    s.ParentPhone,
		ParentEmail:    strings.ToLower(s.ParentEmail),
		Program:        s.Program,
		Session:        s.Session,
		SecondaryLevel: secondary,
		Status:         models.ApplicationStatusPending,
		Notes:          s.Notes,
		SubmittedAt:    now.UTC(),
	}, nil
}
