package database

import "schoolreg/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Student{},
		&models.Application{},
		&models.ApplicationDocument{},
	}
}
