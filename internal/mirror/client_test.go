package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"schoolreg/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStudent() *models.Student {
	appID := "app-1"
	level := "sec1"
	return &models.Student{
		ID:             "stu-1",
		FirstName:      "Mia",
		LastName:       "Tremblay",
		DateOfBirth:    time.Date(2010, 3, 1, 0, 0, 0, 0, time.UTC),
		Gender:         models.GenderFemale,
		Address:        "1 Rue X",
		ParentName:     "A B",
		ParentPhone:    "5145550000",
		Program:        "PEI",
		Session:        "Automne 2024",
		SecondaryLevel: &level,
		Status:         models.StudentStatusActive,
		TuitionAmount:  800,
		ApplicationID:  &appID,
	}
}

func TestClient_CreateStudent(t *testing.T) {
	var got StudentPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/students", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"rec-42","student_code":"SR2024-ABC123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", StaticToken("svc-token"), time.Second)
	id, err := c.CreateStudent(context.Background(), sampleStudent(), "user-9")
	require.NoError(t, err)
	assert.Equal(t, "rec-42", id)

	assert.Equal(t, "Mia", got.FirstName)
	assert.Equal(t, "2010-03-01", got.DateOfBirth)
	assert.Equal(t, "Feminin", got.Gender)
	assert.Equal(t, "sec1", got.SecondaryLevel)
	assert.Equal(t, 800.0, got.TuitionAmount)
	assert.Equal(t, "app-1", got.ApplicationID)
	assert.Equal(t, "user-9", got.UserID)
}

func TestClient_CreateStudent_NumericID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":17}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL, nil, time.Second).CreateStudent(context.Background(), sampleStudent(), "u")
	require.NoError(t, err)
	assert.Equal(t, "17", id)
}

func TestClient_CreateStudent_Failures(t *testing.T) {
	t.Run("error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "forbidden role", http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, StaticToken("x"), time.Second).CreateStudent(context.Background(), sampleStudent(), "u")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("missing id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, StaticToken("x"), time.Second).CreateStudent(context.Background(), sampleStudent(), "u")
		require.Error(t, err)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"id":"late"}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, StaticToken("x"), 50*time.Millisecond).CreateStudent(context.Background(), sampleStudent(), "u")
		require.Error(t, err)
	})

	t.Run("token error", func(t *testing.T) {
		failing := func() (string, error) { return "", errors.New("no key") }
		_, err := NewClient("http://127.0.0.1:1", failing, time.Second).CreateStudent(context.Background(), sampleStudent(), "u")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "service token")
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewClient("", nil, time.Second).CreateStudent(context.Background(), sampleStudent(), "u")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}
