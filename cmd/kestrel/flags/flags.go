// Package flags contains all configuration runtime flags for the kestrel
// orchestrator binary.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// HTTPProviderFlag defines the execution client RPC endpoint used by the
	// enrichment stage. Empty runs the pipeline on declared payload values.
	HTTPProviderFlag = &cli.StringFlag{
		Name:  "http-provider",
		Usage: "An execution client http endpoint. Used for gas and nonce enrichment.",
		Value: "",
	}
	// HTTPHostFlag defines the host of the intents API server.
	HTTPHostFlag = &cli.StringFlag{
		Name:  "http-host",
		Usage: "Host on which the intents API server listens",
		Value: "127.0.0.1",
	}
	// HTTPPortFlag defines the port of the intents API server.
	HTTPPortFlag = &cli.IntFlag{
		Name:  "http-port",
		Usage: "Port on which the intents API server listens",
		Value: 4500,
	}
	// LanesConfigFlag defines the path of a YAML file enumerating relay lanes.
	LanesConfigFlag = &cli.StringFlag{
		Name:  "lanes-config",
		Usage: "The path to a YAML file with relay lane endpoints and credentials",
	}
	// TuningFileFlag defines the path of the hot tuning YAML file.
	TuningFileFlag = &cli.StringFlag{
		Name:  "tuning-file",
		Usage: "The path to a YAML tuning file. The file is re-read when rewritten on disk.",
	}
	// AuditDirFlag overrides the audit log directory. Defaults to
	// <datadir>/audit.
	AuditDirFlag = &cli.StringFlag{
		Name:  "audit-dir",
		Usage: "Directory for the append-only JSONL audit logs",
	}
	// AuditFsyncFlag forces an fsync after every audit append.
	AuditFsyncFlag = &cli.BoolFlag{
		Name:  "audit-fsync",
		Usage: "Fsync the audit log after every append. Durable but slow.",
	}
	// LaneProbeIntervalFlag sets the relay lane probe period in seconds.
	LaneProbeIntervalFlag = &cli.IntFlag{
		Name:  "lane-probe-interval",
		Usage: "Seconds between relay lane status probes",
		Value: 15,
	}
)
