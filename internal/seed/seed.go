package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"schoolreg/internal/models"
	"schoolreg/internal/service"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// StaffPassword is the password given to seeded reviewer accounts.
const StaffPassword = "Direction123!"

// Options configures the seeder.
type Options struct {
	NumApplications int
	// ApproveRatio and RejectRatio are fractions of NumApplications.
	ApproveRatio float64
	RejectRatio  float64
	MaxDocuments int
	RandomSeed   int64
	// SkipBcrypt hashes the staff password at the minimum cost.
	SkipBcrypt bool
	DryRun     bool
}

// Summary reports what a seeding run produced.
type Summary struct {
	Submitted int
	Approved  int
	Rejected  int
	Documents int
	Failed    int
}

// Seeder drives the admissions workflow to populate a database.
type Seeder struct {
	db      *gorm.DB
	svc     *service.ApplicationService
	opts    Options
	factory *Factory
}

// NewSeeder creates a Seeder. Applications go through svc so intake
// validation and approval provisioning apply to seeded data too.
func NewSeeder(db *gorm.DB, svc *service.ApplicationService, opts Options) *Seeder {
	if opts.MaxDocuments < 0 {
		opts.MaxDocuments = 0
	}
	return &Seeder{db: db, svc: svc, opts: opts, factory: NewFactory(db, opts)}
}

// Factory exposes the seeder's factory.
func (s *Seeder) Factory() *Factory { return s.factory }

// ClearAll removes admissions data. Staff accounts are kept.
func (s *Seeder) ClearAll() error {
	log.Println("🗑️  Clearing admissions data...")
	if s.opts.DryRun {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&models.ApplicationDocument{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role IN ?", []models.Role{models.RoleParent, models.RoleStudent}).Delete(&models.User{}).Error; err != nil {
			return err
		}
		if err := all.Model(&models.Application{}).Update("student_id", nil).Error; err != nil {
			return err
		}
		if err := all.Delete(&models.Student{}).Error; err != nil {
			return err
		}
		return all.Delete(&models.Application{}).Error
	})
}

// Run submits NumApplications applications, attaches documents and reviews
// a share of them as the given reviewer. Individual failures are counted and
// logged, not returned.
func (s *Seeder) Run(ctx context.Context, reviewer *service.Caller) (*Summary, error) {
	if s.svc == nil {
		return nil, fmt.Errorf("seeder requires an application service")
	}
	log.Printf("🌱 Seeding %d applications...", s.opts.NumApplications)

	approveN := int(float64(s.opts.NumApplications) * s.opts.ApproveRatio)
	rejectN := int(float64(s.opts.NumApplications) * s.opts.RejectRatio)
	sum := &Summary{}
	now := time.Now()

	for i := 0; i < s.opts.NumApplications; i++ {
		payload := s.factory.Submission(now)
		if s.opts.DryRun {
			log.Printf("[dry-run] Submit: %s %s (%s)", payload["firstName"], payload["lastName"], payload["program"])
			sum.Submitted++
			continue
		}

		app, err := s.svc.Submit(ctx, payload)
		if err != nil {
			log.Printf("⚠️  submit failed: %v", err)
			sum.Failed++
			continue
		}
		sum.Submitted++

		docs := s.factory.faker.Number(0, s.opts.MaxDocuments)
		for d := 0; d < docs; d++ {
			doc := s.factory.Document(app.ID)
			_, err := s.svc.AddDocument(ctx, app.ID, service.DocumentInput{
				Type:     string(doc.Type),
				FileName: doc.FileName,
				FileURL:  doc.FileURL,
				FileSize: doc.FileSize,
				MimeType: doc.MimeType,
			}, nil)
			if err != nil {
				log.Printf("⚠️  document failed: %v", err)
				continue
			}
			sum.Documents++
		}

		switch {
		case i < approveN:
			if _, err := s.svc.Approve(ctx, app.ID, reviewer); err != nil {
				log.Printf("⚠️  approve %s failed: %v", app.ID, err)
				sum.Failed++
				continue
			}
			sum.Approved++
		case i < approveN+rejectN:
			if _, err := s.svc.Reject(ctx, app.ID, "Places complètes pour ce programme", reviewer); err != nil {
				log.Printf("⚠️  reject %s failed: %v", app.ID, err)
				sum.Failed++
				continue
			}
			sum.Rejected++
		}
	}

	log.Printf("🎉 Seeded %d applications (%d approved, %d rejected, %d documents, %d failed)",
		sum.Submitted, sum.Approved, sum.Rejected, sum.Documents, sum.Failed)
	return sum, nil
}

// EnsureReviewer returns an existing admin account or creates one with
// StaffPassword.
func (s *Seeder) EnsureReviewer() (*models.User, error) {
	var existing models.User
	err := s.db.Where("role = ?", models.RoleAdmin).Order("created_at ASC").First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cost := bcrypt.DefaultCost
	if s.opts.SkipBcrypt {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(StaffPassword), cost)
	if err != nil {
		return nil, err
	}
	return s.factory.CreateStaff(models.RoleAdmin, string(hash), func(u *models.User) {
		u.Email = "direction@ecole.local"
		u.FullName = "Direction"
	})
}
