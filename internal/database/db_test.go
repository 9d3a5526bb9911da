package database

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EmptyDatabaseURL(t *testing.T) {
	db, err := New("")
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "DATABASE_URL environment variable not set")
}

func TestCreateCoreTables(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantError bool
	}{
		{
			name: "all statements succeed",
			setupMock: func(mock sqlmock.Sqlmock) {
				// 9 tables followed by 10 indexes, executed in order
				for i := 0; i < 19; i++ {
					mock.ExpectExec("CREATE").
						WillReturnResult(sqlmock.NewResult(0, 0))
				}
			},
			wantError: false,
		},
		{
			name: "first statement fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS customers").
					WillReturnError(sql.ErrConnDone)
			},
			wantError: true,
		},
		{
			name: "index creation fails after tables succeed",
			setupMock: func(mock sqlmock.Sqlmock) {
				for i := 0; i < 9; i++ {
					mock.ExpectExec("CREATE TABLE").
						WillReturnResult(sqlmock.NewResult(0, 0))
				}
				mock.ExpectExec("CREATE INDEX").
					WillReturnError(sql.ErrConnDone)
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer mockDB.Close()

			db := sqlx.NewDb(mockDB, "sqlmock")
			tt.setupMock(mock)

			err = CreateCoreTables(db)

			if tt.wantError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "failed to create core tables")
			} else {
				assert.NoError(t, err)
				assert.NoError(t, mock.ExpectationsWereMet())
			}
		})
	}
}
