// Command main seeds the admissions database with fake applications.
package main

import (
	"context"
	"flag"
	"log"

	"schoolreg/internal/auth"
	"schoolreg/internal/config"
	"schoolreg/internal/database"
	"schoolreg/internal/featureflags"
	"schoolreg/internal/seed"
	"schoolreg/internal/service"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	numApplications := flag.Int("applications", 40, "Number of applications to submit")
	approveRatio := flag.Float64("approve", 0.4, "Share of applications to approve")
	rejectRatio := flag.Float64("reject", 0.2, "Share of applications to reject")
	maxDocuments := flag.Int("documents", 3, "Maximum documents per application")
	randomSeed := flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	skipBcrypt := flag.Bool("fast", true, "Hash seeded passwords at minimum bcrypt cost")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing it")
	shouldClean := flag.Bool("clean", true, "Clean admissions data before seeding")
	flag.Parse()

	log.Println("🌱 Admissions Seeder")
	log.Println("====================")
	log.Printf("Target: %d applications, approve=%.2f reject=%.2f clean=%v\n",
		*numApplications, *approveRatio, *rejectRatio, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	hasher := service.BcryptHasher{}
	if *skipBcrypt {
		hasher.Cost = bcrypt.MinCost
	}

	// Seeding never reaches the student-records or notification services.
	svc := service.NewApplicationService(service.ApplicationServiceDeps{
		DB:     db,
		Hasher: hasher,
		Issuer: auth.NewIssuer(cfg.JWTSecret, cfg.TokenIssuer, cfg.TokenAudience),
		Flags:  featureflags.NewManager(featureflags.CodeAccess + "=on," + featureflags.StudentMirror + "=off"),
		Config: service.ProvisioningConfig{
			StudentEmailDomain:     cfg.StudentEmailDomain,
			DefaultParentPassword:  cfg.DefaultParentPassword,
			DefaultStudentPassword: cfg.DefaultStudentPassword,
			CodeTokenTTL:           cfg.CodeTokenTTL(),
		},
	})

	s := seed.NewSeeder(db, svc, seed.Options{
		NumApplications: *numApplications,
		ApproveRatio:    *approveRatio,
		RejectRatio:     *rejectRatio,
		MaxDocuments:    *maxDocuments,
		RandomSeed:      *randomSeed,
		SkipBcrypt:      *skipBcrypt,
		DryRun:          *dryRun,
	})

	if *shouldClean && !*dryRun {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	reviewer, err := s.EnsureReviewer()
	if err != nil {
		log.Fatalf("❌ Reviewer setup failed: %v", err)
	}

	summary, err := s.Run(context.Background(), &service.Caller{UserID: reviewer.ID, Role: reviewer.Role})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ Submitted %d, approved %d, rejected %d, documents %d, failed %d\n",
		summary.Submitted, summary.Approved, summary.Rejected, summary.Documents, summary.Failed)
	log.Printf("📧 Reviewer %s has the password: %s\n", reviewer.Email, seed.StaffPassword)
	log.Printf("📧 Provisioned parents use %q and students use %q\n", cfg.DefaultParentPassword, cfg.DefaultStudentPassword)
}
