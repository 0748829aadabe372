// Package debug interfaces Go runtime debugging facilities through CLI
// flags. Adapted from github.com/ethereum/go-ethereum/internal/debug.
package debug

import (
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "debug")

var (
	// PProfFlag enables the pprof HTTP server.
	PProfFlag = &cli.BoolFlag{
		Name:  "pprof",
		Usage: "Enable the pprof HTTP server",
	}
	// PProfAddrFlag sets the pprof listen interface.
	PProfAddrFlag = &cli.StringFlag{
		Name:  "pprofaddr",
		Usage: "pprof HTTP server listening interface",
		Value: "127.0.0.1",
	}
	// PProfPortFlag sets the pprof listen port.
	PProfPortFlag = &cli.IntFlag{
		Name:  "pprofport",
		Usage: "pprof HTTP server listening port",
		Value: 6060,
	}
	// MemProfileRateFlag tunes runtime.MemProfileRate.
	MemProfileRateFlag = &cli.IntFlag{
		Name:  "memprofilerate",
		Usage: "Turn on memory profiling with the given rate",
		Value: runtime.MemProfileRate,
	}
	// BlockProfileRateFlag tunes the rate of goroutine blocking events reported.
	BlockProfileRateFlag = &cli.IntFlag{
		Name:  "blockprofilerate",
		Usage: "Turn on block profiling with the given rate",
	}
	// MutexProfileFractionFlag tunes the fraction of mutex contention events reported.
	MutexProfileFractionFlag = &cli.IntFlag{
		Name:  "mutexprofilefraction",
		Usage: "Turn on mutex profiling with the given rate",
	}
	// CPUProfileFlag writes a cpu profile to the given file.
	CPUProfileFlag = &cli.StringFlag{
		Name:  "cpuprofile",
		Usage: "Write CPU profile to the given file",
	}
	// TraceFlag writes an execution trace to the given file.
	TraceFlag = &cli.StringFlag{
		Name:  "trace",
		Usage: "Write execution trace to the given file",
	}
)

// Flags holds all command-line flags required for debugging.
var Flags = []cli.Flag{
	PProfFlag, PProfAddrFlag, PProfPortFlag,
	MemProfileRateFlag, BlockProfileRateFlag, MutexProfileFractionFlag,
	CPUProfileFlag, TraceFlag,
}

// Handler is the global debugging handler.
var Handler = new(HandlerT)

// HandlerT implements the debugging API. Do not create values of this type,
// use the one in the Handler variable instead.
type HandlerT struct {
	mu        sync.Mutex
	cpuW      io.WriteCloser
	cpuFile   string
	traceW    io.WriteCloser
	traceFile string
}

// Setup initializes profiling based on the CLI flags. It should be called as
// early as possible in the program.
func Setup(ctx *cli.Context) error {
	// profiling, tracing
	runtime.MemProfileRate = ctx.Int(MemProfileRateFlag.Name)
	Handler.SetBlockProfileRate(ctx.Int(BlockProfileRateFlag.Name))
	Handler.SetMutexProfileFraction(ctx.Int(MutexProfileFractionFlag.Name))
	if traceFile := ctx.String(TraceFlag.Name); traceFile != "" {
		if err := Handler.StartGoTrace(traceFile); err != nil {
			return err
		}
	}
	if cpuFile := ctx.String(CPUProfileFlag.Name); cpuFile != "" {
		if err := Handler.StartCPUProfile(cpuFile); err != nil {
			return err
		}
	}
	// pprof server
	if ctx.Bool(PProfFlag.Name) {
		address := fmt.Sprintf("%s:%d", ctx.String(PProfAddrFlag.Name), ctx.Int(PProfPortFlag.Name))
		StartPProf(address)
	}
	return nil
}

// StartPProf starts the pprof HTTP server on the given address.
func StartPProf(address string) {
	log.WithField("addr", fmt.Sprintf("http://%s/debug/pprof", address)).Info("Starting pprof server")
	go func() {
		if err := http.ListenAndServe(address, nil); err != nil {
			log.WithError(err).Error("Failure in running pprof server")
		}
	}()
}

// SetBlockProfileRate sets the rate of goroutine block profile data collection.
// rate 0 disables block profiling.
func (*HandlerT) SetBlockProfileRate(rate int) {
	runtime.SetBlockProfileRate(rate)
}

// SetMutexProfileFraction sets the rate of mutex profiling.
func (*HandlerT) SetMutexProfileFraction(rate int) {
	runtime.SetMutexProfileFraction(rate)
}

// StartCPUProfile turns on CPU profiling, writing to the given file.
func (h *HandlerT) StartCPUProfile(file string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cpuW != nil {
		return errors.New("CPU profiling already in progress")
	}
	f, err := os.Create(expandHome(file))
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		if err := f.Close(); err != nil {
			return err
		}
		return err
	}
	h.cpuW = f
	h.cpuFile = file
	log.WithField("dump", h.cpuFile).Info("CPU profiling started")
	return nil
}

// StopCPUProfile stops an ongoing CPU profile.
func (h *HandlerT) StopCPUProfile() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	pprof.StopCPUProfile()
	if h.cpuW == nil {
		return errors.New("CPU profiling not in progress")
	}
	log.WithField("dump", h.cpuFile).Info("Done writing CPU profile")
	if err := h.cpuW.Close(); err != nil {
		return err
	}
	h.cpuW = nil
	h.cpuFile = ""
	return nil
}

// StartGoTrace turns on tracing, writing to the given file.
func (h *HandlerT) StartGoTrace(file string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.traceW != nil {
		return errors.New("trace already in progress")
	}
	f, err := os.Create(expandHome(file))
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		if err := f.Close(); err != nil {
			return err
		}
		return err
	}
	h.traceW = f
	h.traceFile = file
	log.WithField("dump", h.traceFile).Info("Go tracing started")
	return nil
}

// StopGoTrace stops an ongoing trace.
func (h *HandlerT) StopGoTrace() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	trace.Stop()
	if h.traceW == nil {
		return errors.New("trace not in progress")
	}
	log.WithField("dump", h.traceFile).Info("Done writing Go trace")
	if err := h.traceW.Close(); err != nil {
		return err
	}
	h.traceW = nil
	h.traceFile = ""
	return nil
}

// Exit stops all running profiles, flushing their output to the respective file.
func Exit() {
	if err := Handler.StopCPUProfile(); err != nil && err.Error() != "CPU profiling not in progress" {
		log.WithError(err).Error("Failed to stop CPU profile")
	}
	if err := Handler.StopGoTrace(); err != nil && err.Error() != "trace not in progress" {
		log.WithError(err).Error("Failed to stop Go trace")
	}
}

func expandHome(p string) string {
	if len(p) > 1 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			p = home + p[1:]
		}
	}
	return p
}
