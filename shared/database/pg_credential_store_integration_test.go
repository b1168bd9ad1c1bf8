package database_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"venue-server/pkg/migration"
	"venue-server/shared/database"
	"venue-server/shared/interfaces"
	"venue-server/shared/models"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// PgStoreSuite проверяет Postgres-реализации репозиториев на реальной БД.
type PgStoreSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool
	users       interfaces.UserRepository
	store       database.PgCredentialStore
	profiles    interfaces.ProfileRepository
	logger      *zap.Logger
}

func TestPgStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("Docker client unavailable: %v", err)
	}
	defer cli.Close()
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Skipf("Docker is not running: %v", err)
	}
	suite.Run(t, new(PgStoreSuite))
}

func (s *PgStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)
	s.pool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err)

	m := migration.NewMigrator(migration.Config{
		MigrationsFS:   database.MigrationsFS,
		MigrationsPath: database.MigrationsDir,
	}, s.pool, s.logger)
	require.NoError(s.T(), m.Up(s.ctx))
	version, dirty, err := m.Version(s.ctx)
	require.NoError(s.T(), err)
	require.False(s.T(), dirty)
	require.Equal(s.T(), uint(2), version)

	// user-service схема ведет собственную историю миграций
	pm := migration.NewMigrator(migration.Config{
		MigrationsFS:    database.ProfileMigrationsFS,
		MigrationsPath:  database.ProfileMigrationsDir,
		MigrationsTable: "profile_schema_migrations",
	}, s.pool, s.logger)
	require.NoError(s.T(), pm.Up(s.ctx))

	s.users = database.NewPgUserRepository(s.pool, s.logger)
	s.store = database.NewPgCredentialStore(s.pool, s.logger)
	s.profiles = database.NewPgProfileRepository(s.pool, s.logger)
}

func (s *PgStoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
}

func (s *PgStoreSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, "TRUNCATE TABLE users, refresh_tokens, profiles RESTART IDENTITY CASCADE")
	require.NoError(s.T(), err)
}

func (s *PgStoreSuite) createSubject(name string) *models.Subject {
	u := &models.Subject{Username: name, Email: name + "@example.com", PasswordHash: "hash"}
	require.NoError(s.T(), s.users.CreateUser(s.ctx, u))
	return u
}

func (s *PgStoreSuite) TestCreateUserDefaultsAndConflicts() {
	u := s.createSubject("alice")
	s.NotEqual(uuid.Nil, u.ID)
	s.Equal(models.RoleUser, u.Role)

	got, err := s.users.GetUserByEmail(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(models.DefaultReliabilityScore, got.ReliabilityScore)
	s.Nil(got.RestrictedUntil)

	err = s.users.CreateUser(s.ctx, &models.Subject{Username: "alice2", Email: "alice@example.com", PasswordHash: "x"})
	s.ErrorIs(err, models.ErrEmailAlreadyExists)
	err = s.users.CreateUser(s.ctx, &models.Subject{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	s.ErrorIs(err, models.ErrUserAlreadyExists)

	_, err = s.users.GetUserByID(s.ctx, uuid.New())
	s.ErrorIs(err, models.ErrUserNotFound)
}

func (s *PgStoreSuite) TestSaveFindDelete() {
	u := s.createSubject("bob")
	s.Require().NoError(s.store.Save(s.ctx, u.ID, "token-1", time.Hour))

	rec, err := s.store.FindByToken(s.ctx, "token-1")
	s.Require().NoError(err)
	s.Equal(u.ID, rec.SubjectID)
	s.False(rec.Restricted(time.Now()))

	s.Require().NoError(s.store.DeleteByToken(s.ctx, "token-1"))
	s.Require().NoError(s.store.DeleteByToken(s.ctx, "token-1"))
	_, err = s.store.FindByToken(s.ctx, "token-1")
	s.ErrorIs(err, models.ErrTokenNotFound)

	s.ErrorIs(s.store.Save(s.ctx, uuid.New(), "orphan", time.Hour), models.ErrUserNotFound)
}

func (s *PgStoreSuite) TestFindReportsRestriction() {
	u := s.createSubject("carol")
	s.Require().NoError(s.store.Save(s.ctx, u.ID, "token-r", time.Hour))
	until := time.Now().Add(48 * time.Hour)
	s.Require().NoError(s.users.SetRestriction(s.ctx, u.ID, &until))

	rec, err := s.store.FindByToken(s.ctx, "token-r")
	s.Require().NoError(err)
	s.True(rec.Restricted(time.Now()))
}

func (s *PgStoreSuite) TestDeleteAllForSubjectAndPurge() {
	a := s.createSubject("dave")
	b := s.createSubject("erin")
	s.Require().NoError(s.store.Save(s.ctx, a.ID, "a1", time.Hour))
	s.Require().NoError(s.store.Save(s.ctx, a.ID, "a2", time.Hour))
	s.Require().NoError(s.store.Save(s.ctx, b.ID, "b1", time.Hour))
	s.Require().NoError(s.store.Save(s.ctx, b.ID, "b-expired", -time.Minute))

	n, err := s.store.DeleteAllForSubject(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), n)
	_, err = s.store.FindByToken(s.ctx, "b1")
	s.NoError(err)

	_, err = s.store.FindByToken(s.ctx, "b-expired")
	s.ErrorIs(err, models.ErrTokenNotFound)
	purged, err := s.store.PurgeExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), purged)
}

func (s *PgStoreSuite) TestConcurrentRotateSingleWinner() {
	u := s.createSubject("frank")
	s.Require().NoError(s.store.Save(s.ctx, u.ID, "shared", time.Hour))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Rotate(s.ctx, "shared", u.ID, uuid.NewString(), time.Hour); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())

	var count int
	s.Require().NoError(s.pool.QueryRow(s.ctx, "SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1", u.ID).Scan(&count))
	s.Equal(1, count)
}

func (s *PgStoreSuite) TestProfileLifecycle() {
	id := uuid.New()
	p := &models.Profile{UserID: id, Username: "hana", Email: "hana@example.com"}
	s.Require().NoError(s.profiles.Create(s.ctx, p))
	s.Equal("hana", p.DisplayName)
	s.False(p.CreatedAt.IsZero())

	err := s.profiles.Create(s.ctx, &models.Profile{UserID: id, Username: "hana", Email: "hana@example.com"})
	s.ErrorIs(err, models.ErrUserAlreadyExists)

	got, err := s.profiles.GetByUserID(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(models.DefaultReliabilityScore, got.ReliabilityScore)

	updated, err := s.profiles.UpdateDisplayName(s.ctx, id, "Hana B.")
	s.Require().NoError(err)
	s.Equal("Hana B.", updated.DisplayName)

	_, err = s.profiles.GetByUserID(s.ctx, uuid.New())
	s.ErrorIs(err, models.ErrUserNotFound)
	_, err = s.profiles.UpdateDisplayName(s.ctx, uuid.New(), "x")
	s.ErrorIs(err, models.ErrUserNotFound)
}
