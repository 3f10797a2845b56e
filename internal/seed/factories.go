// Package seed provides helpers to create demo admissions data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"strings"
	"time"

	"schoolreg/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

var (
	programs = []string{
		"Programme régulier", "Programme enrichi", "PEI", "Sport-études soccer",
		"Arts-études musique", "Baccalauréat international", "Programme régulier",
	}
	documentTypes = []models.DocumentType{
		models.DocumentTypeBirthCertificate, models.DocumentTypePhoto,
		models.DocumentTypeReportCard, models.DocumentTypeMedicalRecord,
	}
	genders = []string{"Masculin", "Feminin", "Autre"}
)

// Factory builds admission payloads and documents. It is a thin helper used
// by the seeder and by tests.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
}

// NewFactory creates a Factory bound to db. A zero opts.RandomSeed draws a
// time-based seed.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{db: db, opts: opts, faker: gofakeit.New(seed)}
}

// Submission builds a raw intake payload for a secondary applicant aged 12
// to 16 at the start of the following autumn session. Overrides may replace
// or delete keys.
func (f *Factory) Submission(now time.Time, overrides ...func(map[string]any)) map[string]any {
	year := now.Year() + 1
	sessionStart := time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC)
	dob := f.faker.DateRange(sessionStart.AddDate(-17, 0, 1), sessionStart.AddDate(-12, 0, 0))

	first := f.faker.FirstName()
	last := f.faker.LastName()
	payload := map[string]any{
		"firstName":      first,
		"lastName":       last,
		"dateOfBirth":    dob.Format("2006-01-02"),
		"gender":         f.faker.RandomString(genders),
		"address":        fmt.Sprintf("%s, %s", f.faker.Street(), f.faker.City()),
		"parentName":     f.faker.FirstName() + " " + last,
		"parentPhone":    f.faker.Phone(),
		"program":        f.faker.RandomString(programs),
		"session":        fmt.Sprintf("Automne %d", year),
		"secondaryLevel": fmt.Sprintf("Secondaire %d", f.faker.Number(1, 5)),
	}
	if f.faker.Float64Range(0, 1) < 0.8 {
		payload["parentEmail"] = strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com",
			f.faker.FirstName(), last, f.faker.Number(10, 9999)))
	}

	for _, override := range overrides {
		override(payload)
	}
	return payload
}

// Document builds document metadata for an application.
func (f *Factory) Document(applicationID string) *models.ApplicationDocument {
	typ := documentTypes[f.faker.Number(0, len(documentTypes)-1)]
	name := fmt.Sprintf("%s-%s.pdf", typ, f.faker.LetterN(6))
	return &models.ApplicationDocument{
		ApplicationID: applicationID,
		Type:          typ,
		FileName:      name,
		FileURL:       fmt.Sprintf("https://files.ecole.local/admissions/%s/%s", applicationID, name),
		FileSize:      int64(f.faker.Number(20_000, 2_000_000)),
		MimeType:      "application/pdf",
	}
}

// CreateStaff persists a reviewer account with a pre-hashed password.
func (f *Factory) CreateStaff(role models.Role, passwordHash string, overrides ...func(*models.User)) (*models.User, error) {
	user := &models.User{
		Email:    strings.ToLower(fmt.Sprintf("%s.%d@ecole.local", f.faker.Username(), f.faker.Number(100, 999))),
		Password: passwordHash,
		Role:     role,
		FullName: f.faker.Name(),
	}
	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		log.Printf("[dry-run] CreateStaff: %s (%s)", user.Email, user.Role)
		return user, nil
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}
