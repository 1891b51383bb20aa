package maintenance

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rajkayal/hubauth/internal/auth/otp"
	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/internal/services"
)

// testDSN names each in-memory database uniquely so pooled connections
// share one database without leaking state between tests.
func testDSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1",
		strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func newCleanerFixture(t *testing.T) (*Cleaner, *gorm.DB, *time.Time) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(testDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OTPRecord{}, &models.AuditLog{}))

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	store, err := otp.NewStore(db, otp.WithClock(clock))
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	cleaner := NewCleaner(store, otp.DefaultExpiryWindow, audit,
		WithNow(clock),
		WithAuditRetentionDays(30),
	)
	return cleaner, db, &current
}

func TestRunOncePurgesExpiredCodes(t *testing.T) {
	cleaner, db, current := newCleanerFixture(t)

	stale := models.OTPRecord{Email: "old@x.com", Code: "111111"}
	stale.CreatedAt = current.Add(-10 * time.Minute)
	require.NoError(t, db.Create(&stale).Error)

	fresh := models.OTPRecord{Email: "fresh@x.com", Code: "222222"}
	fresh.CreatedAt = current.Add(-1 * time.Minute)
	require.NoError(t, db.Create(&fresh).Error)

	require.NoError(t, cleaner.RunOnce(context.Background()))

	var remaining []models.OTPRecord
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "fresh@x.com", remaining[0].Email)
}

func TestRunOnceEnforcesAuditRetention(t *testing.T) {
	cleaner, db, current := newCleanerFixture(t)

	ancient := models.AuditLog{Email: "a@x.com", Event: models.AuditLoginSuccess}
	ancient.CreatedAt = current.AddDate(0, 0, -31)
	require.NoError(t, db.Create(&ancient).Error)

	recent := models.AuditLog{Email: "a@x.com", Event: models.AuditLoginSuccess}
	recent.CreatedAt = current.AddDate(0, 0, -5)
	require.NoError(t, db.Create(&recent).Error)

	require.NoError(t, cleaner.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestStartAndStop(t *testing.T) {
	cleaner, _, _ := newCleanerFixture(t)

	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}

func TestCleanerWithoutDependencies(t *testing.T) {
	cleaner := NewCleaner(nil, 0, nil)
	require.NoError(t, cleaner.Start())
	require.NoError(t, cleaner.RunOnce(context.Background()))
}
