// Package node defines the kestrel orchestrator node. It handles the
// lifecycle of the entire system and registers services to a service
// registry.
package node

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"sync"
	"syscall"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/cmd"
	"github.com/dchisholm125/kestrel-hq-sub001/cmd/kestrel/flags"
	"github.com/dchisholm125/kestrel-hq-sub001/config/features"
	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/dchisholm125/kestrel-hq-sub001/io/file"
	"github.com/dchisholm125/kestrel-hq-sub001/io/logs"
	"github.com/dchisholm125/kestrel-hq-sub001/monitoring/prometheus"
	"github.com/dchisholm125/kestrel-hq-sub001/monitoring/tracing"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/audit"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/capital"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/kv"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/ingest"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/pipeline"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/relay"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/submitter"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/transition"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/tuning"
	"github.com/dchisholm125/kestrel-hq-sub001/runtime"
	"github.com/dchisholm125/kestrel-hq-sub001/runtime/debug"
	"github.com/dchisholm125/kestrel-hq-sub001/runtime/version"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

const intentDBDirName = "intentdata"
const auditDirName = "audit"

// Orchestrator ties every kestrel service together. It handles the lifecycle
// of the system and registers services to a service registry.
type Orchestrator struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	lock     sync.RWMutex
	services *runtime.ServiceRegistry
	stop     chan struct{} // Channel to wait for termination notifications.
	db       db.Database
}

// New creates a new node instance, sets up configuration options, and
// registers every required service.
func New(cliCtx *cli.Context) (*Orchestrator, error) {
	if err := tracing.Setup(
		"kestrel",
		cliCtx.String(cmd.TracingProcessNameFlag.Name),
		cliCtx.String(cmd.TracingEndpointFlag.Name),
		cliCtx.Float64(cmd.TraceSampleFractionFlag.Name),
		cliCtx.Bool(cmd.EnableTracingFlag.Name),
	); err != nil {
		return nil, err
	}

	if cliCtx.IsSet(cmd.OrchestratorConfigFileFlag.Name) {
		params.LoadConfigFile(cliCtx.String(cmd.OrchestratorConfigFileFlag.Name))
	}
	features.ConfigureOrchestrator(cliCtx)

	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &Orchestrator{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	if err := node.startDB(cliCtx); err != nil {
		return nil, err
	}
	if err := node.registerServices(cliCtx); err != nil {
		return nil, err
	}
	return node, nil
}

func (n *Orchestrator) startDB(cliCtx *cli.Context) error {
	baseDir, err := file.ExpandPath(cliCtx.String(cmd.DataDirFlag.Name))
	if err != nil {
		return errors.Wrap(err, "could not expand data directory")
	}
	dbPath := filepath.Join(baseDir, intentDBDirName)
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	log.WithField("databasePath", dbPath).Info("Checking DB")
	store, err := kv.NewKVStore(dbPath, &kv.Config{})
	if err != nil {
		return errors.Wrap(err, "could not open database")
	}

	clearDBConfirmed := false
	if clearDB && !forceClearDB {
		actionText := "This will delete your kestrel intent database stored in your data directory. " +
			"Already-terminal intents will lose their audit rows. Do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return err
		}
	}
	if clearDBConfirmed || forceClearDB {
		log.Warning("Removing database")
		if err := store.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		store, err = kv.NewKVStore(dbPath, &kv.Config{})
		if err != nil {
			return errors.Wrap(err, "could not create new database")
		}
	}
	n.db = store
	return nil
}

func (n *Orchestrator) registerServices(cliCtx *cli.Context) error {
	auditDir := cliCtx.String(flags.AuditDirFlag.Name)
	if auditDir == "" {
		auditDir = filepath.Join(cliCtx.String(cmd.DataDirFlag.Name), auditDirName)
	}
	auditLog, err := audit.NewLogger(&audit.Config{
		Dir:   auditDir,
		Fsync: cliCtx.Bool(flags.AuditFsyncFlag.Name),
	})
	if err != nil {
		return errors.Wrap(err, "could not open audit log")
	}

	daemon := tuning.NewDaemon(n.ctx, &tuning.Config{
		FilePath: cliCtx.String(flags.TuningFileFlag.Name),
		Watch:    !features.Get().DisableTuningWatch,
	})
	if err := n.services.RegisterService(daemon); err != nil {
		return err
	}

	guard := capital.NewGuard(n.ctx, &capital.Config{Tuning: daemon, Audit: auditLog})
	if err := n.services.RegisterService(guard); err != nil {
		return err
	}

	lanes, checkers, tracker, err := n.buildLanes(cliCtx)
	if err != nil {
		return err
	}
	if len(checkers) > 0 && features.Get().EnableLaneProber {
		interval := time.Duration(cliCtx.Int(flags.LaneProbeIntervalFlag.Name)) * time.Second
		prober := relay.NewProber(n.ctx, checkers, tracker, interval)
		if err := n.services.RegisterService(prober); err != nil {
			return err
		}
	}

	executor := transition.NewExecutor(n.db)

	boundary, err := ingest.New(&ingest.Config{DB: n.db, Audit: auditLog})
	if err != nil {
		return err
	}
	apiAddr := fmt.Sprintf("%s:%d", cliCtx.String(flags.HTTPHostFlag.Name), cliCtx.Int(flags.HTTPPortFlag.Name))
	if err := n.services.RegisterService(ingest.NewGateway(n.ctx, boundary, apiAddr)); err != nil {
		return err
	}

	var provider pipeline.Provider
	if endpoint := cliCtx.String(flags.HTTPProviderFlag.Name); endpoint != "" {
		log.WithField("provider", logs.MaskCredentialsLogging(endpoint)).Info("Connecting to execution client")
		client, err := ethclient.DialContext(n.ctx, endpoint)
		if err != nil {
			return errors.Wrap(err, "could not dial execution client")
		}
		provider = client
	}
	pipe := pipeline.New(n.ctx, &pipeline.Config{
		DB:       n.db,
		Executor: executor,
		Notifier: boundary,
		Provider: provider,
		Guard:    guard,
	})
	if err := n.services.RegisterService(pipe); err != nil {
		return err
	}

	sub, err := submitter.New(n.ctx, &submitter.Config{
		DB:       n.db,
		Executor: executor,
		Tracker:  tracker,
		Lanes:    lanes,
		Tuning:   daemon,
		Audit:    auditLog,
	})
	if err != nil {
		return err
	}
	if err := n.services.RegisterService(sub); err != nil {
		return err
	}

	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		return n.registerPrometheus(cliCtx)
	}
	return nil
}

// goroutineChecker fails the /healthz endpoint when the process leaks
// goroutines past the configured ceiling.
type goroutineChecker struct {
	max int
}

func (c *goroutineChecker) Start() {}

func (c *goroutineChecker) Stop() error {
	return nil
}

func (c *goroutineChecker) Status() error {
	if n := goruntime.NumGoroutine(); n > c.max {
		return errors.Errorf("too many goroutines: %d", n)
	}
	return nil
}

func (n *Orchestrator) buildLanes(cliCtx *cli.Context) ([]relay.Lane, []relay.StatusChecker, *relay.HealthTracker, error) {
	var configs []relay.LaneConfig
	if path := cliCtx.String(flags.LanesConfigFlag.Name); path != "" {
		var err error
		configs, err = relay.LoadLaneConfigs(path)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	tracker := relay.NewHealthTracker(configs)
	timeout := time.Duration(params.KestrelConfig().RelayCallTimeoutMs) * time.Millisecond
	lanes := make([]relay.Lane, 0, len(configs))
	checkers := make([]relay.StatusChecker, 0, len(configs))
	for _, cfg := range configs {
		lane, err := relay.NewHTTPLane(cfg, relay.WithTimeout(timeout))
		if err != nil {
			return nil, nil, nil, err
		}
		lanes = append(lanes, lane)
		checkers = append(checkers, lane)
	}
	log.WithField("lanes", len(lanes)).Info("Configured relay lanes")
	return lanes, checkers, tracker, nil
}

func (n *Orchestrator) registerPrometheus(cliCtx *cli.Context) error {
	if err := n.services.RegisterService(&goroutineChecker{max: cliCtx.Int(cmd.MaxGoroutines.Name)}); err != nil {
		return err
	}
	var handlers []prometheus.Handler
	if features.Get().EnableBackupWebhook {
		handlers = append(handlers, prometheus.Handler{
			Path: "/db/backup",
			Handler: func(w http.ResponseWriter, r *http.Request) {
				if err := n.db.Backup(r.Context()); err != nil {
					log.WithError(err).Error("Could not backup database")
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				w.WriteHeader(http.StatusOK)
			},
		})
	}
	addr := fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(cmd.MonitoringPortFlag.Name))
	service := prometheus.NewService(addr, n.services, handlers...)
	return n.services.RegisterService(service)
}

// Start the orchestrator and kick off every registered service.
func (n *Orchestrator) Start() {
	n.lock.Lock()
	log.WithField("version", version.GetVersion()).Info("Starting orchestrator node")
	n.services.StartAll()
	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		debug.Exit() // Ensure trace and CPU profile data are flushed.
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the orchestrator node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *Orchestrator) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping orchestrator node")
	n.services.StopAll()
	if err := n.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	n.cancel()
	close(n.stop)
}
