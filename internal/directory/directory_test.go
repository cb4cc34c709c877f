package directory

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
)

func TestOutletInfo_IsStaff(t *testing.T) {
	o := OutletInfo{ID: "out-1", OwnerID: "owner", StaffIDs: []string{"cook", "cashier"}}

	assert.True(t, o.IsStaff("owner"))
	assert.True(t, o.IsStaff("cashier"))
	assert.False(t, o.IsStaff("buyer"))
	assert.False(t, o.IsStaff(""))
}

func TestOutletInfo_NextClose(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	o := OutletInfo{ClosesAt: "21:30", Location: jakarta}

	// 18:00 local
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	got, ok := o.NextClose(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 21, 30, 0, 0, jakarta).Unix(), got.Unix())

	// 22:00 local: already closed today
	_, ok = o.NextClose(time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	_, ok = OutletInfo{}.NextClose(now)
	assert.False(t, ok)
	_, ok = OutletInfo{ClosesAt: "late"}.NextClose(now)
	assert.False(t, ok)
}

func TestMemory_NotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.User(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = m.Outlet(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = m.Unit(ctx, "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	m.PutUser(UserInfo{ID: "u-1", Status: StatusActive})
	u, err := m.User(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, u.Status)
}

func TestPostgres_User(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, status FROM users").WithArgs("u-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}).AddRow("u-1", "SUSPENDED"))
	mock.ExpectQuery("SELECT id, status FROM users").WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status"}))

	dir := &Postgres{DB: mock}

	u, err := dir.User(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, u.Status)

	_, err = dir.User(context.Background(), "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}
