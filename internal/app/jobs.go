package app

import (
	"os"
	"path"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/veritag/veritag/internal/domain"
	"github.com/veritag/veritag/pkg/metrics"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.SchedSystemMonitorTask()
		go a.SchedProcessMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	sweepSpec := a.settingsMgr.GetString("system", "QrSweepCron")
	if sweepSpec == "" {
		sweepSpec = "@daily"
	}
	_, err = a.sched.AddFunc(sweepSpec, func() {
		if err := a.SweepOrphanBlobs(); err != nil {
			zap.L().Error("qr sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		days := a.settingsMgr.GetInt64("system", "OperatorLogDays")
		if days == 0 {
			days = 365
		}
		a.gormDB.
			Where("opt_time < ? ", time.Now().
				Add(-time.Hour*24*time.Duration(days))).Delete(domain.OperatorLog{})
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SweepOrphanBlobs deletes QR images no product references anymore, i.e.
// blobs superseded by regeneration or left behind by deletion. Blobs
// younger than the configured minimum age are kept so an in-flight
// provisioning run is never raced.
func (a *Application) SweepOrphanBlobs() error {
	bucket := a.appConfig.Storage.QrBucket

	blobs, err := a.blobs.List(bucket)
	if err != nil {
		return err
	}
	if len(blobs) == 0 {
		return nil
	}

	var urls []string
	if err := a.gormDB.Model(&domain.Product{}).
		Where("qr_code_url <> ''").Pluck("qr_code_url", &urls).Error; err != nil {
		return err
	}
	referenced := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		referenced[path.Base(u)] = struct{}{}
	}

	minAge := a.settingsMgr.GetInt64("system", "QrSweepMinAgeMinutes")
	if minAge == 0 {
		minAge = 60
	}
	cutoff := time.Now().Add(-time.Duration(minAge) * time.Minute)

	deleted := 0
	for _, blob := range blobs {
		if _, ok := referenced[blob.Name]; ok {
			continue
		}
		if blob.CreatedAt.After(cutoff) {
			continue
		}
		if err := a.blobs.Delete(bucket, blob.Name); err != nil {
			zap.L().Warn("orphan blob delete failed", zap.String("name", blob.Name), zap.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		zap.L().Info("qr sweep finished",
			zap.Int("deleted", deleted), zap.Int("scanned", len(blobs)))
	}
	metrics.SetGauge("qr_sweep_deleted", int64(deleted))
	return nil
}

// SchedSystemMonitorTask system monitor
func (a *Application) SchedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	// Collect CPU usage
	_cpuuse, err := cpu.Percent(0, false)
	if err == nil && len(_cpuuse) > 0 {
		metrics.SetGauge("system_cpuuse", int64(_cpuuse[0]*100)) // Store as percentage * 100
	}

	// Collect memory usage
	_meminfo, err := mem.VirtualMemory()
	if err == nil {
		metrics.SetGauge("system_memuse", int64(_meminfo.Used/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}
}

// SchedProcessMonitorTask app process monitor
func (a *Application) SchedProcessMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // G115: PID is always within int32 range
	if err != nil {
		return
	}

	// Collect process CPU usage
	cpuuse, err := p.CPUPercent()
	if err == nil {
		metrics.SetGauge("veritag_cpuuse", int64(cpuuse*100)) // Store as percentage * 100
	}

	// Collect process memory usage
	meminfo, err := p.MemoryInfo()
	if err == nil {
		metrics.SetGauge("veritag_memuse", int64(meminfo.RSS/1024/1024)) //nolint:gosec // G115: memory MB value fits in int64
	}
}
