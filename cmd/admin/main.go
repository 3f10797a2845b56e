// Package main provides staff account utilities for the admissions service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"schoolreg/internal/config"
	"schoolreg/internal/database"
	"schoolreg/internal/models"
	"schoolreg/internal/repository"
	"schoolreg/internal/service"
	"schoolreg/internal/validation"

	"gorm.io/gorm"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  admin create <email> <admin|direction> <password> [full name]  - Create a staff account")
	fmt.Println("  admin set-role <email> <role>                                  - Change the role of an account")
	fmt.Println("  admin list-staff                                               - List admin and direction accounts")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)

	switch os.Args[1] {
	case "create":
		if len(os.Args) < 5 {
			usage()
			os.Exit(1)
		}
		name := ""
		if len(os.Args) > 5 {
			name = os.Args[5]
		}
		createStaff(ctx, users, os.Args[2], models.Role(os.Args[3]), os.Args[4], name)

	case "set-role":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		setRole(ctx, users, os.Args[2], models.Role(os.Args[3]))

	case "list-staff":
		listStaff(db)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func createStaff(ctx context.Context, users repository.UserRepository, email string, role models.Role, password, name string) {
	if !role.CanReview() {
		log.Fatalf("Role %q cannot review applications; use admin or direction", role)
	}
	if err := validation.ValidateEmail(email); err != nil {
		log.Fatalf("Invalid email: %v", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		log.Fatalf("Weak password: %v", err)
	}

	hash, err := service.BcryptHasher{}.Hash(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	user := &models.User{Email: email, Role: role, Password: hash, FullName: name}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("Failed to create account: %v", err)
	}
	fmt.Printf("✅ Created %s account %s (ID: %s)\n", role, user.Email, user.ID)
}

func setRole(ctx context.Context, users repository.UserRepository, email string, role models.Role) {
	if !role.Valid() {
		log.Fatalf("Unknown role %q", role)
	}
	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	if user == nil {
		fmt.Printf("User with email %s not found\n", email)
		os.Exit(1)
	}
	if user.Role == role {
		fmt.Printf("User %s already has role %s\n", user.Email, role)
		return
	}
	if err := users.UpdateRole(ctx, user.ID, role); err != nil {
		log.Fatalf("Failed to update role: %v", err)
	}
	fmt.Printf("✅ %s is now %s (was %s)\n", user.Email, role, user.Role)
}

func listStaff(db *gorm.DB) {
	var staff []models.User
	if err := db.Where("role IN ?", []models.Role{models.RoleAdmin, models.RoleDirection}).
		Order("email").Find(&staff).Error; err != nil {
		log.Fatalf("Failed to fetch staff: %v", err)
	}

	if len(staff) == 0 {
		fmt.Println("No staff accounts found")
		return
	}

	fmt.Println("\n📋 Staff accounts:")
	fmt.Println("─────────────────────────────────────")
	for _, u := range staff {
		fmt.Printf("ID: %s | Role: %s | Email: %s\n", u.ID, u.Role, u.Email)
	}
	fmt.Println("─────────────────────────────────────")
}
