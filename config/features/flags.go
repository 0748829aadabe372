package features

import (
	"github.com/urfave/cli/v2"
)

var (
	devModeFlag = &cli.BoolFlag{
		Name:  "dev",
		Usage: "Enable experimental features still in development. These features may not be stable.",
	}
	enableDecoysFlag = &cli.BoolFlag{
		Name:  "enable-decoys",
		Usage: "Append decoy templates to mitigated bundle plans. Decoy volume is tuned via antimev.decoyPct.",
	}
	enableBackupWebhookFlag = &cli.BoolFlag{
		Name:  "enable-db-backup-webhook",
		Usage: "Serve HTTP handler to initiate database backups. The handler is served on the monitoring port at path /db/backup.",
	}
	enableLaneProberFlag = &cli.BoolFlag{
		Name:  "enable-lane-prober",
		Usage: "Probe configured relay lanes periodically and refresh lane health snapshots.",
	}
	disableTuningWatchFlag = &cli.BoolFlag{
		Name:  "disable-tuning-watch",
		Usage: "Do not hot reload the tuning file when it changes on disk.",
	}
)

// devModeFlags holds list of flags that are set when development mode is on.
var devModeFlags = []cli.Flag{
	enableLaneProberFlag,
}

// deprecatedEnableJitterFlag is deprecated; timing jitter is always derived
// from the tuning snapshot (antimev.jitterMaxMs).
var deprecatedEnableJitterFlag = &cli.BoolFlag{
	Name:   "enable-jitter",
	Usage:  deprecatedUsage,
	Hidden: true,
}

const deprecatedUsage = "DEPRECATED. DO NOT USE."

var deprecatedFlags = []cli.Flag{
	deprecatedEnableJitterFlag,
}

// OrchestratorFlags contains a list of all the feature flags that apply to the
// kestrel orchestrator client.
var OrchestratorFlags = append(deprecatedFlags, []cli.Flag{
	devModeFlag,
	enableDecoysFlag,
	enableBackupWebhookFlag,
	enableLaneProberFlag,
	disableTuningWatchFlag,
}...)

// ActiveFlags returns all of the flags that are not hidden.
func ActiveFlags(flags []cli.Flag) []cli.Flag {
	visibleFlags := make([]cli.Flag, 0, len(flags))
	for _, flag := range flags {
		if f, ok := flag.(*cli.BoolFlag); ok && f.Hidden {
			continue
		}
		visibleFlags = append(visibleFlags, flag)
	}
	return visibleFlags
}
