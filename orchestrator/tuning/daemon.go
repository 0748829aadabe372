package tuning

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"sync/atomic"

	"github.com/dchisholm125/kestrel-hq-sub001/io/file"
	"github.com/ethereum/go-ethereum/event"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

var log = logrus.WithField("prefix", "tuning")

var reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kestrel_tuning_reloads_total",
	Help: "Tuning file reload attempts by outcome.",
}, []string{"outcome"})

// Daemon owns the tuning snapshot. It implements runtime.Service: Start
// loads the configured tuning file and watches it for rewrites.
type Daemon struct {
	ctx      context.Context
	cancel   context.CancelFunc
	filePath string
	watch    bool
	snapshot atomic.Value // *Snapshot
	feed     event.Feed
}

// Config for the tuning daemon.
type Config struct {
	// FilePath of the YAML tuning file. Empty means defaults only.
	FilePath string
	// Watch re-loads the file on filesystem write events.
	Watch bool
}

// NewDaemon builds a daemon holding the default snapshot.
func NewDaemon(ctx context.Context, cfg *Config) *Daemon {
	ctx, cancel := context.WithCancel(ctx)
	d := &Daemon{
		ctx:      ctx,
		cancel:   cancel,
		filePath: cfg.FilePath,
		watch:    cfg.Watch,
	}
	d.snapshot.Store(DefaultSnapshot())
	return d
}

// Get returns the current immutable snapshot.
func (d *Daemon) Get() *Snapshot {
	return d.snapshot.Load().(*Snapshot)
}

// OnUpdate subscribes ch to snapshot swaps. Listeners are notified
// asynchronously and should pull Get() at the start of each decision rather
// than hold the delivered pointer.
func (d *Daemon) OnUpdate(ch chan<- *Snapshot) event.Subscription {
	return d.feed.Subscribe(ch)
}

// Apply validates a flat map of dotted tuning keys and swaps in a new
// snapshot. On any unrecognized key or malformed value nothing is applied
// and the previous snapshot is kept.
func (d *Daemon) Apply(overrides map[string]interface{}) error {
	next := d.Get().Copy()
	for key, value := range overrides {
		if err := next.apply(key, value); err != nil {
			return err
		}
	}
	d.snapshot.Store(next)
	d.feed.Send(next)
	return nil
}

// Start loads the tuning file, if configured, and begins watching it.
func (d *Daemon) Start() {
	if d.filePath == "" {
		log.Debug("No tuning file configured, using defaults")
		return
	}
	if !file.FileExists(d.filePath) {
		reloadsTotal.WithLabelValues("error").Inc()
		log.WithField("path", d.filePath).Error("Tuning file does not exist, keeping defaults")
		if d.watch {
			go d.watchFile()
		}
		return
	}
	if err := d.loadFile(); err != nil {
		reloadsTotal.WithLabelValues("error").Inc()
		log.WithError(err).Error("Could not load tuning file")
	} else {
		reloadsTotal.WithLabelValues("ok").Inc()
	}
	if d.watch {
		go d.watchFile()
	}
}

// Stop terminates the file watcher.
func (d *Daemon) Stop() error {
	d.cancel()
	return nil
}

// Status always reports healthy; a bad tuning file keeps the previous
// snapshot rather than degrading the service.
func (d *Daemon) Status() error {
	return nil
}

func (d *Daemon) loadFile() error {
	raw, err := ioutil.ReadFile(d.filePath) // #nosec G304
	if err != nil {
		return errors.Wrap(err, "could not read tuning file")
	}
	var nested map[string]interface{}
	if err := yaml.Unmarshal(raw, &nested); err != nil {
		return errors.Wrap(err, "could not parse tuning file")
	}
	flat := make(map[string]interface{})
	flatten("", nested, flat)
	if err := d.Apply(flat); err != nil {
		return err
	}
	log.WithField("path", d.filePath).Info("Applied tuning file")
	return nil
}

// flatten converts nested YAML maps into dotted keys: capital.kill, ...
func flatten(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch nested := v.(type) {
		case map[string]interface{}:
			flatten(key, nested, out)
		case map[interface{}]interface{}:
			m := make(map[string]interface{}, len(nested))
			for nk, nv := range nested {
				m[fmt.Sprintf("%v", nk)] = nv
			}
			flatten(key, m, out)
		default:
			out[key] = v
		}
	}
}

// watchFile re-loads the tuning file whenever it is rewritten. Watching the
// parent directory survives editors that replace the file atomically.
func (d *Daemon) watchFile() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Error("Could not start tuning file watcher")
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.WithError(err).Debug("Could not close tuning file watcher")
		}
	}()
	if err := watcher.Add(filepath.Dir(d.filePath)); err != nil {
		log.WithError(err).Error("Could not watch tuning directory")
		return
	}
	target := filepath.Clean(d.filePath)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := d.loadFile(); err != nil {
				reloadsTotal.WithLabelValues("error").Inc()
				log.WithError(err).Error("Could not re-load tuning file, keeping previous snapshot")
			} else {
				reloadsTotal.WithLabelValues("ok").Inc()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Error("Tuning file watcher error")
		case <-d.ctx.Done():
			return
		}
	}
}
