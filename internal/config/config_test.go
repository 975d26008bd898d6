package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/learnward/metron/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given a clean environment", t, func() {
		os.Unsetenv("METRON_CONFIG")
		os.Unsetenv("METRON_WORKER_COUNT")
		os.Unsetenv("METRON_LOG_LEVEL")
		os.Unsetenv("METRON_METRICS_ADDR")
		ctx := context.Background()

		Convey("When loading with no file and no env", func() {
			cfg, err := config.Load(ctx)

			Convey("Then the defaults come back", func() {
				So(err, ShouldBeNil)
				So(cfg.LogLevel, ShouldEqual, "info")
				So(cfg.MetricsAddr, ShouldEqual, ":9090")
				So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
				So(cfg.QueueSize, ShouldEqual, 10_000)
				So(cfg.StoreRetryAttempts, ShouldEqual, 3)
				So(cfg.MissingTagWeight, ShouldEqual, 0)
				So(cfg.AbsentAsZero, ShouldBeFalse)
			})
		})

		Convey("When a YAML file is pointed to", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "metron.yaml")
			So(os.WriteFile(path, []byte("log_level: debug\nworker_count: 7\n"), 0o600), ShouldBeNil)
			os.Setenv("METRON_CONFIG", path)
			defer os.Unsetenv("METRON_CONFIG")

			cfg, err := config.Load(ctx)

			Convey("Then file values override the defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.LogLevel, ShouldEqual, "debug")
				So(cfg.WorkerCount, ShouldEqual, 7)
				So(cfg.MetricsAddr, ShouldEqual, ":9090")
			})

			Convey("And env vars override the file", func() {
				os.Setenv("METRON_WORKER_COUNT", "11")
				defer os.Unsetenv("METRON_WORKER_COUNT")

				cfg, err := config.Load(ctx)
				So(err, ShouldBeNil)
				So(cfg.WorkerCount, ShouldEqual, 11)
				So(cfg.LogLevel, ShouldEqual, "debug")
			})
		})

		Convey("When the file path is dangling", func() {
			os.Setenv("METRON_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			defer os.Unsetenv("METRON_CONFIG")

			_, err := config.Load(ctx)

			Convey("Then loading fails with ErrLoadConfig", func() {
				So(err, ShouldWrap, config.ErrLoadConfig)
			})
		})

		Convey("When a value fails validation", func() {
			os.Setenv("METRON_WORKER_COUNT", "0")
			defer os.Unsetenv("METRON_WORKER_COUNT")

			_, err := config.Load(ctx)

			Convey("Then loading fails with ErrInvalidConfig", func() {
				So(err, ShouldWrap, config.ErrInvalidConfig)
			})
		})
	})
}
