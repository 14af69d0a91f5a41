package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/carebridge/claims-pipeline/common/config"
	"github.com/carebridge/claims-pipeline/common/logging"
	"github.com/carebridge/claims-pipeline/common/pcontext"
	"github.com/carebridge/claims-pipeline/common/version"
	"github.com/carebridge/claims-pipeline/database"
	"github.com/carebridge/claims-pipeline/datastores"
	"github.com/carebridge/claims-pipeline/filecache"
	"github.com/carebridge/claims-pipeline/hasher"
	"github.com/carebridge/claims-pipeline/loader"
	"github.com/carebridge/claims-pipeline/metrics"
	"github.com/carebridge/claims-pipeline/queue"
	"github.com/carebridge/claims-pipeline/tasks"
)

func main() {
	configPath := flag.String("config", "claims-pipeline.yaml", "The path to the configuration")
	migrationsPath := flag.String("migrations", "./migrations", "The absolute path for the migrations folder")
	versionFlag := flag.Bool("version", false, "Prints the version and exits")
	flag.Parse()

	if *versionFlag {
		version.Print(false)
		return // exit 0
	}

	// Override config path with env for Docker users
	configEnv := os.Getenv("PIPELINE_CONFIG")
	if configEnv != "" {
		configPath = &configEnv
	}

	c, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	if err = logging.Setup(c.General); err != nil {
		panic(err)
	}

	logrus.Info("Starting up...")
	version.Print(true)

	if c.Sentry.Enabled {
		logrus.Info("Setting up Sentry for debugging...")
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:         c.Sentry.Dsn,
			Environment: c.Sentry.Environment,
			Debug:       c.Sentry.Debug,
			Release:     version.GitCommit,
		}); err != nil {
			logrus.Fatal(err)
		}
	}
	defer sentry.Flush(2 * time.Second)
	defer sentry.Recover()

	metrics.Init(c.Metrics)

	logrus.Info("Connecting to the database...")
	db, err := database.Open(c.Database, *migrationsPath)
	if err != nil {
		logrus.Fatal(err)
	}
	defer db.Close()

	logrus.Info("Connecting to the object store...")
	objects, err := datastores.NewS3ObjectStore(c.ObjectStore)
	if err != nil {
		logrus.Fatal(err)
	}

	cache, err := filecache.NewCache(c.Load.CacheDirectory, objects)
	if err != nil {
		logrus.Fatal(err)
	}

	identifierHasher, err := hasher.NewIdentifierHasher(c.Hashing, hasher.NewDatabaseHashStore(db))
	if err != nil {
		logrus.Fatal(err)
	}

	ctx := pcontext.Initial(c)
	stopSignal := make(chan struct{})
	runner := &pipelineRunner{
		cache:  cache,
		queue:  queue.NewManifestQueue(objects, cache, queue.NewDatabaseStateStore(db), c.Discovery.AllowSynthetic),
		loader: loader.NewLoader(loader.NewDatabaseStore(db), identifierHasher, c.Load, stopSignal),
		source: &loader.LineRecordSource{IdentifierFields: c.Load.IdentifierFields},
		stop:   stopSignal,
	}

	logrus.Info("Starting recurring tasks...")
	scheduler := tasks.NewScheduler(ctx)
	scheduler.StartRecurring("discovery", time.Duration(c.Discovery.ScanIntervalSeconds)*time.Second, runner.runCycle)

	idlePool := tasks.NewIdlePool(1)
	sweep := tasks.SweepRetention(db)
	scheduler.StartRecurring("retention", 24*time.Hour, func(taskCtx pcontext.PipelineContext) error {
		idlePool.Submit(func() {
			if err := sweep(taskCtx); err != nil {
				taskCtx.Log.Error("Retention sweep failed: ", err)
			}
		})
		return nil
	})

	logrus.Info("Starting config watcher...")
	watcher := config.Watch(*configPath, func(next *config.PipelineConfig) {
		if next.Metrics != c.Metrics {
			logrus.Warn("Metrics configuration changed - remounting")
			metrics.Reload(next.Metrics)
		}
		if next.General.LogLevel != c.General.LogLevel {
			if lvl, err := logrus.ParseLevel(next.General.LogLevel); err == nil {
				logrus.SetLevel(lvl)
			}
		}
		c.Metrics = next.Metrics
		c.General.LogLevel = next.General.LogLevel
	})
	defer watcher.Close()

	logrus.Info("Pipeline started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	// In-flight batch transactions finish; the runner stops pulling new work
	// at its next checkpoint.
	logrus.Info("Stopping pipeline...")
	runner.requestStop()
	scheduler.Stop()
	idlePool.Close()
	metrics.Stop()

	if err = cache.DeleteAll(); err != nil {
		logrus.Warn("Error cleaning the file cache: ", err)
	}
	logrus.Info("Goodbye!")
}
