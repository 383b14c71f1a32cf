package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gribbirg/deadline-mate/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, profilesPath string) *Repository {
	t.Helper()

	config := viper.New()
	config.Set(ProfilesPathKey, profilesPath)

	repo, err := NewRepository(config)
	require.NoError(t, err)
	return repo
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "profiles.toml"))

	loginAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	student := domain.Profile{
		Name:        domain.DefaultProfile,
		BaseURL:     "http://localhost:8000/api/",
		LastLoginAt: loginAt,
		User: &domain.User{
			ID:             7,
			Username:       "alice",
			Email:          "alice@example.com",
			Role:           domain.RoleStudent,
			FirstName:      "Alice",
			LastName:       "Liddell",
			StudentProfile: &domain.StudentProfile{ID: 3, Major: "CS", YearOfStudy: 2},
		},
	}
	teacher := domain.Profile{
		Name:    "staging",
		BaseURL: "https://staging.example.com/api/",
		User: &domain.User{
			ID:             11,
			Username:       "bob",
			Role:           domain.RoleTeacher,
			TeacherProfile: &domain.TeacherProfile{ID: 5, Position: "Lecturer", Department: "Math"},
		},
	}

	require.NoError(t, repo.Save(context.Background(), student))
	require.NoError(t, repo.Save(context.Background(), teacher))

	got, err := repo.GetByName(context.Background(), domain.DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, student, got)

	profiles, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Profile{student, teacher}, profiles)
}

func TestRepositorySaveReplacesExistingProfileAndClearsUser(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "profiles.toml"))

	profile := domain.Profile{
		Name: domain.DefaultProfile,
		User: &domain.User{ID: 1, Username: "alice", Role: domain.RoleStudent},
	}
	require.NoError(t, repo.Save(context.Background(), profile))

	profile.User = nil
	require.NoError(t, repo.Save(context.Background(), profile))

	got, err := repo.GetByName(context.Background(), domain.DefaultProfile)
	require.NoError(t, err)
	assert.Nil(t, got.User)

	profiles, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestRepositoryReadsHandWrittenFile(t *testing.T) {
	t.Parallel()

	profilesPath := filepath.Join(t.TempDir(), "profiles.toml")
	require.NoError(t, os.WriteFile(profilesPath, []byte(strings.Join([]string{
		"version = 1",
		"",
		"[[profiles]]",
		"name = \"default\"",
		"base_url = \"http://localhost:8000/api/\"",
		"",
		"[profiles.user]",
		"id = 4",
		"username = \"carol\"",
		"role = \"teacher\"",
		"",
	}, "\n")), 0o600))

	repo := newTestRepository(t, profilesPath)

	profile, err := repo.GetByName(context.Background(), domain.DefaultProfile)
	require.NoError(t, err)
	require.NotNil(t, profile.User)
	assert.Equal(t, "carol", profile.User.Username)
	assert.True(t, profile.User.IsTeacher())
	assert.Nil(t, profile.User.TeacherProfile)
	assert.True(t, profile.LastLoginAt.IsZero())
}

func TestRepositorySaveCreatesDefaultPathAndEnforcesPermissions(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	repo, err := NewRepository(viper.New())
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), domain.Profile{Name: domain.DefaultProfile}))

	profilesPath := filepath.Join(homeDir, ".deadline-mate", "profiles.toml")
	assert.Equal(t, profilesPath, repo.Path())
	info, err := os.Stat(profilesPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRepositoryMissingFileBehaviors(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "missing", "profiles.toml"))

	profiles, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)

	_, err = repo.GetByName(context.Background(), domain.DefaultProfile)
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestRepositorySaveRejectsEmptyName(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "profiles.toml"))

	err := repo.Save(context.Background(), domain.Profile{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "profile name is empty")
}

func TestRepositoryListMalformedTOMLReturnsError(t *testing.T) {
	t.Parallel()

	profilesPath := filepath.Join(t.TempDir(), "profiles.toml")
	require.NoError(t, os.WriteFile(profilesPath, []byte("profiles = ["), 0o600))

	repo := newTestRepository(t, profilesPath)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode profiles file")
}

func TestRepositorySaveCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, filepath.Join(t.TempDir(), "profiles.toml"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Save(ctx, domain.Profile{Name: domain.DefaultProfile})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRepositoryConcurrentSavesAcrossInstancesPreserveAllProfiles(t *testing.T) {
	t.Parallel()

	profilesPath := filepath.Join(t.TempDir(), "profiles.toml")
	repoA := newTestRepository(t, profilesPath)
	repoB := newTestRepository(t, profilesPath)

	const perRepoWrites = 50
	start := make(chan struct{})
	errCh := make(chan error, perRepoWrites*2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repoA.Save(context.Background(), domain.Profile{Name: domain.ProfileName("a-" + strconv.Itoa(i))})
		}
	}()

	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repoB.Save(context.Background(), domain.Profile{Name: domain.ProfileName("b-" + strconv.Itoa(i))})
		}
	}()

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	profiles, err := repoA.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, profiles, perRepoWrites*2)
}

func TestRepositorySaveSerializedTOMLIncludesVersion(t *testing.T) {
	t.Parallel()

	profilesPath := filepath.Join(t.TempDir(), "profiles.toml")
	repo := newTestRepository(t, profilesPath)

	require.NoError(t, repo.Save(context.Background(), domain.Profile{Name: domain.DefaultProfile}))

	data, err := os.ReadFile(profilesPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
}

func TestRepositoryFutureSchemaVersionReturnsError(t *testing.T) {
	t.Parallel()

	profilesPath := filepath.Join(t.TempDir(), "profiles.toml")
	require.NoError(t, os.WriteFile(profilesPath, []byte("version = 999\n\nprofiles = []\n"), 0o600))

	repo := newTestRepository(t, profilesPath)

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported profiles schema version")
}
