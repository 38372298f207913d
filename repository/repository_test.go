package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-site-director/entity"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(db), mock
}

func TestOperationCreateReturnsID(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`INSERT INTO "operations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	op := &entity.Operation{SiteID: 7, Type: entity.OperationRenameSite}
	require.NoError(t, repo.OperationRepo.Create(context.Background(), op))

	assert.Equal(t, uint(5), op.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperationCreateDuplicateSite(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`INSERT INTO "operations"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: `duplicate key value violates unique constraint "idx_operations_site_id"`})

	op := &entity.Operation{SiteID: 7, Type: entity.OperationRenameSite}
	err := repo.OperationRepo.Create(context.Background(), op)

	assert.ErrorIs(t, err, ErrOperationExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperationExistsBySiteID(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "operations" WHERE site_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "operations" WHERE site_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err := repo.OperationRepo.ExistsBySiteID(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.OperationRepo.ExistsBySiteID(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(`SELECT \* FROM "operations" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.OperationRepo.FindByID(context.Background(), 99)

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActionSaveProgressUpdatesOnlyProgressColumns(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE "actions" SET "started_time"=\$1,"before_state"=\$2,"after_state"=\$3,"result"=\$4,"message"=\$5 WHERE .*"id" = \$6`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	action := &entity.Action{ID: 3, OperationID: 1, Slug: "change_site_name", StartedTime: &now, BeforeState: "alpha"}
	action.SetResult(true)

	require.NoError(t, repo.PipelineStore().SaveAction(context.Background(), action))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteUpdateFieldsRequiresFields(t *testing.T) {
	repo, mock := newMockRepository(t)

	err := repo.SiteRepo.UpdateFields(context.Background(), &entity.Site{ID: 1})

	assert.ErrorIs(t, err, ErrNoFields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailInterruptedWithoutOperations(t *testing.T) {
	repo, mock := newMockRepository(t)

	n, err := repo.ActionRepo.FailInterrupted(context.Background(), nil, "interrupted")

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailInterruptedMarksRows(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE "actions" SET .* WHERE operation_id IN \(\$\d,\$\d\) AND started_time IS NOT NULL AND result IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ActionRepo.FailInterrupted(context.Background(), []uint{4, 9}, "interrupted")

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteDeleteDropsMembershipsFirst(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM site_users WHERE site_id = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "sites" WHERE "sites"."id" = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	site := &entity.Site{ID: 3, Name: "alpha", Users: []entity.User{{ID: 1}, {ID: 2}}}
	require.NoError(t, repo.SiteRepo.Delete(context.Background(), site))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSiteDeleteRollsBackOnFailure(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM site_users WHERE site_id = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "sites"`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.SiteRepo.Delete(context.Background(), &entity.Site{ID: 3})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStartedClaimsOnlyPendingOperation(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`UPDATE "operations" SET "started_time"=\$1 WHERE id = \$2 AND started_time IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "operations" SET "started_time"=\$1 WHERE id = \$2 AND started_time IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now()
	op := &entity.Operation{ID: 5, StartedTime: &now}
	require.NoError(t, repo.PipelineStore().MarkOperationStarted(context.Background(), op))
	assert.ErrorIs(t, repo.PipelineStore().MarkOperationStarted(context.Background(), op), ErrOperationNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteIfUnstartedSkipsClaimedOperation(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(`DELETE FROM "operations" WHERE .*started_time IS NULL`).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM "operations" WHERE .*started_time IS NULL`).
		WithArgs(6).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.OperationRepo.DeleteIfUnstarted(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.OperationRepo.DeleteIfUnstarted(context.Background(), 6)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
