package service

import (
	"context"
	"testing"
	"time"

	"schoolreg/internal/auth"
	"schoolreg/internal/cache"
	"schoolreg/internal/models"
	"schoolreg/internal/repository"
	"schoolreg/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	svc     *AuthService
	users   repository.UserRepository
	issuer  *auth.Issuer
	revoked *cache.TokenRevocations
	user    *models.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &authFixture{
		users:   repository.NewUserRepository(db),
		issuer:  auth.NewIssuer("test-secret-that-is-at-least-32-chars", "schoolreg", "schoolreg-api"),
		revoked: cache.NewTokenRevocations(rdb),
	}
	f.svc = NewAuthService(f.users, plainHasher{}, f.issuer, f.revoked, time.Hour)

	f.user = &models.User{Email: "parent@example.com", Password: "plain:Parent123!", Role: models.RoleParent, FullName: "A B"}
	require.NoError(t, f.users.Create(context.Background(), f.user))
	return f
}

func TestAuthService_Login(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Login(ctx, " Parent@Example.com ", "Parent123!")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, sess.User.ID)

	claims, err := f.issuer.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleParent, claims.Role)
	assert.Equal(t, f.user.ID, claims.UserID)

	_, err = f.svc.Login(ctx, "parent@example.com", "wrong")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = f.svc.Login(ctx, "nobody@example.com", "Parent123!")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = f.svc.Login(ctx, "", "x")
	assert.Error(t, err)
}

func TestAuthService_LoginRejectsSystemAccounts(t *testing.T) {
	f := newAuthFixture(t)
	require.NoError(t, f.users.Create(context.Background(), &models.User{
		Email: "svc@ecole.local", Password: "plain:Svc123456!", Role: models.RoleSystem,
	}))

	_, err := f.svc.Login(context.Background(), "svc@ecole.local", "Svc123456!")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Login(ctx, "parent@example.com", "Parent123!")
	require.NoError(t, err)
	claims, err := f.issuer.Parse(sess.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, claims))
	revoked, err := f.revoked.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.ErrorIs(t, f.svc.Logout(ctx, nil), models.ErrUnauthenticated)
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, f.user.ID, "wrong", "BrandNew#Pass12")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	err = f.svc.ChangePassword(ctx, f.user.ID, "Parent123!", "Parent123!")
	assert.Error(t, err)

	err = f.svc.ChangePassword(ctx, f.user.ID, "Parent123!", "short")
	assert.Error(t, err)

	require.NoError(t, f.svc.ChangePassword(ctx, f.user.ID, "Parent123!", "BrandNew#Pass12"))
	_, err = f.svc.Login(ctx, "parent@example.com", "BrandNew#Pass12")
	assert.NoError(t, err)
	_, err = f.svc.Login(ctx, "parent@example.com", "Parent123!")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	me, err := f.svc.Me(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "parent@example.com", me.Email)
}
