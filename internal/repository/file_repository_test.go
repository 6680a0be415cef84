package repository

import (
	"testing"

	"kb-admin-go/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestFileRepository_FindByDepartment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFileRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "category", "department_id"}).
		AddRow(1, "手冊.pdf", "規章制度", 3).
		AddRow(2, "報表.xlsx", model.SentinelCategoryName, 3)
	mock.ExpectQuery("SELECT \\* FROM `files` WHERE department_id = \\? ORDER BY id asc").
		WithArgs(3).
		WillReturnRows(rows)

	files, err := repo.FindByDepartment(3)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "手冊.pdf", files[0].Name)
	require.Equal(t, uint(3), files[1].DepartmentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_DeleteMissingReturnsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFileRepository(db)

	mock.ExpectExec("DELETE FROM `files` WHERE department_id = \\? AND id = \\?").
		WithArgs(3, 9).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(3, 9)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_ReassignCategory(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFileRepository(db)

	mock.ExpectExec("UPDATE `files` SET `category`=\\? WHERE department_id = \\? AND category = \\?").
		WithArgs(model.SentinelCategoryName, 3, "規章制度").
		WillReturnResult(sqlmock.NewResult(0, 2))

	moved, err := repo.ReassignCategory(3, "規章制度", model.SentinelCategoryName)
	require.NoError(t, err)
	require.Equal(t, int64(2), moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_CountByDepartment(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFileRepository(db)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `files` WHERE department_id = \\?").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := repo.CountByDepartment(3)
	require.NoError(t, err)
	require.Equal(t, int64(7), total)
	require.NoError(t, mock.ExpectationsWereMet())
}
