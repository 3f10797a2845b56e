package repository

import (
	"context"
	"errors"
	"testing"

	"schoolreg/internal/models"
	"schoolreg/internal/testutil"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_FindOrCreateByEmail(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created, isNew, err := repo.FindOrCreateByEmail(ctx, &models.User{
		Email:    "  Julie@Example.com ",
		Password: "hash-1",
		Role:     models.RoleParent,
	})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "julie@example.com", created.Email)

	again, isNew, err := repo.FindOrCreateByEmail(ctx, &models.User{
		Email:    "julie@example.com",
		Password: "hash-2",
		Role:     models.RoleParent,
		FullName: "Julie Tremblay",
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "hash-1", again.Password, "existing credential is kept")
	assert.Equal(t, "Julie Tremblay", again.FullName)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUserRepository_FindOrCreateByEmailRefreshesName(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created, _, err := repo.FindOrCreateByEmail(ctx, &models.User{
		Email: "julie@example.com", Password: "hash-1", Role: models.RoleParent, FullName: "Old Name",
	})
	require.NoError(t, err)

	renamed, isNew, err := repo.FindOrCreateByEmail(ctx, &models.User{
		Email: "julie@example.com", Password: "hash-2", Role: models.RoleStudent, FullName: "Julie Gagnon",
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "Julie Gagnon", renamed.FullName)

	kept, _, err := repo.FindOrCreateByEmail(ctx, &models.User{Email: "julie@example.com", Password: "hash-3"})
	require.NoError(t, err)
	assert.Equal(t, "Julie Gagnon", kept.FullName, "empty name leaves the stored one")

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Julie Gagnon", stored.FullName)
	assert.Equal(t, "hash-1", stored.Password)
	assert.Equal(t, models.RoleParent, stored.Role)
}

func TestUserRepository_StudentLink(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	students := NewStudentRepository(db)
	ctx := context.Background()

	student := &models.Student{
		FirstName: "Mia", LastName: "Tremblay", Gender: models.GenderFemale,
		Address: "x", ParentName: "p", ParentPhone: "1", Program: "PEI", Session: "Automne 2024",
		Status: models.StudentStatusActive, TuitionAmount: 800, StudentCode: "SR2024-ABC123",
	}
	require.NoError(t, students.Create(ctx, student))

	none, err := repo.GetByStudentID(ctx, student.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	sid := student.ID
	u, _, err := repo.FindOrCreateByEmail(ctx, &models.User{
		Email: "mia.tremblay@student.ecole.local", Password: "h", Role: models.RoleStudent, StudentID: &sid,
	})
	require.NoError(t, err)

	linked, err := repo.GetByStudentID(ctx, student.ID)
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, u.ID, linked.ID)

	require.NoError(t, repo.SetMirrorStudentID(ctx, student.ID, "remote-42"))
	reloaded, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.MirrorStudentID)
	assert.Equal(t, "remote-42", *reloaded.MirrorStudentID)
	assert.NotNil(t, reloaded.StudentID)
}

func TestUserRepository_PasswordAndRole(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &models.User{Email: "a@b.c", Password: "old", Role: models.RoleParent}
	require.NoError(t, repo.Create(ctx, u))

	err := repo.Create(ctx, &models.User{Email: "A@B.C", Password: "x", Role: models.RoleParent})
	assert.ErrorIs(t, err, &models.AppError{Code: models.CodeValidation})

	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "new"))
	require.NoError(t, repo.UpdateRole(ctx, u.ID, models.RoleDirection))
	got, err := repo.GetByEmail(ctx, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Password)
	assert.Equal(t, models.RoleDirection, got.Role)

	assert.ErrorIs(t, repo.UpdatePassword(ctx, "missing", "x"), models.ErrNotFound)

	missing, err := repo.GetByEmail(ctx, "nobody@b.c")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: users.email")))
	assert.False(t, isUniqueConstraintError(nil))
}
