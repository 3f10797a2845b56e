package auth

import (
	"testing"
	"time"

	"schoolreg/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer(testSecret, "schoolreg", "schoolreg-api")
	studentID := "stu-1"
	user := &models.User{
		ID:        "user-1",
		Email:     "mia.tremblay@student.ecole.local",
		Role:      models.RoleStudent,
		FullName:  "Mia Tremblay",
		StudentID: &studentID,
	}

	token, exp, err := iss.Issue(ClaimsForUser(user), time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "Mia Tremblay", claims.FullName)
	require.NotNil(t, claims.StudentID)
	assert.Equal(t, "stu-1", *claims.StudentID)
	assert.NotEmpty(t, claims.ID)
}

func TestIssuer_UniqueTokenIDs(t *testing.T) {
	iss := NewIssuer(testSecret, "schoolreg", "schoolreg-api")
	c := Claims{UserID: "u", Role: models.RoleParent}

	a, _, err := iss.Issue(c, time.Minute)
	require.NoError(t, err)
	b, _, err := iss.Issue(c, time.Minute)
	require.NoError(t, err)

	ca, err := iss.Parse(a)
	require.NoError(t, err)
	cb, err := iss.Parse(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestIssuer_RejectsInvalidTokens(t *testing.T) {
	iss := NewIssuer(testSecret, "schoolreg", "schoolreg-api")
	c := Claims{UserID: "u", Role: models.RoleAdmin}

	expired, _, err := iss.Issue(c, -time.Minute)
	require.NoError(t, err)

	other := NewIssuer("another-secret-key-123456789012345678901234", "schoolreg", "schoolreg-api")
	foreign, _, err := other.Issue(c, time.Minute)
	require.NoError(t, err)

	wrongAud := NewIssuer(testSecret, "schoolreg", "someone-else")
	misdirected, _, err := wrongAud.Issue(c, time.Minute)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"Expired", expired},
		{"Wrong Secret", foreign},
		{"Wrong Audience", misdirected},
		{"Unsigned", unsigned},
		{"Garbage", "malformed.token.here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.Parse(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestIssuer_RequiresSecret(t *testing.T) {
	_, _, err := NewIssuer("", "a", "b").Issue(Claims{UserID: "u"}, time.Minute)
	assert.Error(t, err)
}
