package app

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/veritag/veritag/config"
	"github.com/veritag/veritag/internal/blobstore"
	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/pkg/common"
)

func newSweepApp(t *testing.T) *Application {
	t.Helper()

	cfg := *config.DefaultAppConfig
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "veritag.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(domain.Tables...))

	store, err := blobstore.Open(filepath.Join(t.TempDir(), "blobs.db"), cfg.Web.BaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &Application{
		appConfig:   &cfg,
		gormDB:      db,
		settingsMgr: NewSettingsManager(db),
		blobs:       store,
	}
}

func TestSweepOrphanBlobs(t *testing.T) {
	a := newSweepApp(t)
	bucket := a.appConfig.Storage.QrBucket

	// A negative minimum age makes just-written blobs immediately eligible.
	require.NoError(t, a.settingsMgr.Save("system", map[string]interface{}{
		"QrSweepMinAgeMinutes": -1,
	}))

	refURL, err := a.blobs.Put(bucket, "qr-1-kept.png", []byte("kept"), "image/png")
	require.NoError(t, err)
	_, err = a.blobs.Put(bucket, "qr-2-orphan.png", []byte("orphan"), "image/png")
	require.NoError(t, err)

	require.NoError(t, a.gormDB.Create(&domain.Product{
		ID:        common.NextID(),
		LabelID:   "LBL-001",
		Title:     "Premium Oil",
		QrCodeURL: refURL,
	}).Error)

	require.NoError(t, a.SweepOrphanBlobs())

	_, _, err = a.blobs.Get(bucket, "qr-1-kept.png")
	assert.NoError(t, err, "referenced blob survives the sweep")
	_, _, err = a.blobs.Get(bucket, "qr-2-orphan.png")
	assert.ErrorIs(t, err, blobstore.ErrNotFound, "orphan blob is reclaimed")
}

func TestSweepSparesYoungBlobs(t *testing.T) {
	a := newSweepApp(t)
	bucket := a.appConfig.Storage.QrBucket

	// Default minimum age (one hour) applies when no setting exists, so a
	// freshly written orphan must survive.
	_, err := a.blobs.Put(bucket, "qr-fresh-orphan.png", []byte("fresh"), "image/png")
	require.NoError(t, err)

	require.NoError(t, a.SweepOrphanBlobs())

	_, _, err = a.blobs.Get(bucket, "qr-fresh-orphan.png")
	assert.NoError(t, err)
}

func TestSweepEmptyBucket(t *testing.T) {
	a := newSweepApp(t)
	assert.NoError(t, a.SweepOrphanBlobs())
}
