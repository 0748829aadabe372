// Package main defines the kestrel orchestrator binary. The orchestrator
// accepts client intents, drives them through the staged pipeline, and fans
// submissions out to the configured relay lanes.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/dchisholm125/kestrel-hq-sub001/cmd"
	"github.com/dchisholm125/kestrel-hq-sub001/cmd/kestrel/flags"
	"github.com/dchisholm125/kestrel-hq-sub001/config/features"
	"github.com/dchisholm125/kestrel-hq-sub001/io/logs"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/node"
	"github.com/dchisholm125/kestrel-hq-sub001/runtime/debug"
	"github.com/dchisholm125/kestrel-hq-sub001/runtime/version"
	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = logrus.WithField("prefix", "main")

func startNode(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	orchestrator, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	orchestrator.Start()
	return nil
}

var appFlags = []cli.Flag{
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.EnableTracingFlag,
	cmd.TracingProcessNameFlag,
	cmd.TracingEndpointFlag,
	cmd.TraceSampleFractionFlag,
	cmd.DisableMonitoringFlag,
	cmd.MonitoringHostFlag,
	cmd.MonitoringPortFlag,
	cmd.LogFileName,
	cmd.LogFormat,
	cmd.ClearDB,
	cmd.ForceClearDB,
	cmd.ConfigFileFlag,
	cmd.OrchestratorConfigFileFlag,
	cmd.MaxGoroutines,
	debug.PProfFlag,
	debug.PProfAddrFlag,
	debug.PProfPortFlag,
	debug.MemProfileRateFlag,
	debug.CPUProfileFlag,
	debug.TraceFlag,
	flags.HTTPProviderFlag,
	flags.HTTPHostFlag,
	flags.HTTPPortFlag,
	flags.LanesConfigFlag,
	flags.TuningFileFlag,
	flags.AuditDirFlag,
	flags.AuditFsyncFlag,
	flags.LaneProbeIntervalFlag,
}

func init() {
	appFlags = cmd.WrapFlags(append(appFlags, features.OrchestratorFlags...))
}

func main() {
	app := cli.App{}
	app.Name = "kestrel"
	app.Usage = "launches an intent orchestrator that screens, enriches, and routes execution bundles to relay lanes"
	app.Version = version.GetVersion()
	app.Flags = appFlags
	app.Action = startNode
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(cmd.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				appFlags,
				altsrc.NewYamlSourceFromFlagFunc(
					cmd.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as Gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logs.ConfigurePersistentLogging(logFileName); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return debug.Setup(ctx)
	}

	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
