package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/kartta/internal/config"
	"github.com/yairfalse/kartta/internal/emitter"
)

// sinks is the emitter chain for one process plus the files it owns.
type sinks struct {
	emitter.Emitter
	closers []io.Closer
}

// Close flushes the chain before closing any output file.
func (s *sinks) Close() error {
	errs := []error{s.Emitter.Close()}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// buildSinks assembles the configured sinks. extra sinks are fanned out to
// alongside the configured ones.
func buildSinks(cfg config.EmitConfig, stdout io.Writer, meter metric.Meter, extra ...emitter.Emitter) (*sinks, error) {
	s := &sinks{}
	var out []emitter.Emitter

	w := stdout
	if cfg.Output != "" && cfg.Output != "-" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		s.closers = append(s.closers, f)
		w = f
	}
	if w != nil {
		out = append(out, emitter.NewJSONEmitter(w, cfg.Pretty || cfg.Format == "json"))
	}

	if cfg.BoltPath != "" {
		b, err := emitter.NewBoltEmitter(cfg.BoltPath)
		if err != nil {
			closeAll(out, s.closers)
			return nil, err
		}
		out = append(out, b)
	}

	if cfg.NATSURL != "" {
		n, err := emitter.NewNATSEmitter(cfg.NATSURL, cfg.NATSSubject, nats.MaxReconnects(10))
		if err != nil {
			closeAll(out, s.closers)
			return nil, err
		}
		out = append(out, n)
	}

	out = append(out, extra...)

	var chain emitter.Emitter = emitter.NewMultiEmitter(out...)
	if meter != nil {
		m, err := emitter.NewMetricsEmitter(chain, meter)
		if err != nil {
			closeAll(out, s.closers)
			return nil, err
		}
		chain = m
	}
	if cfg.QueueSize > 0 {
		chain = emitter.NewQueueEmitter(chain, cfg.QueueSize)
	}

	s.Emitter = chain
	return s, nil
}

func closeAll(emitters []emitter.Emitter, closers []io.Closer) {
	for _, e := range emitters {
		_ = e.Close()
	}
	for _, c := range closers {
		_ = c.Close()
	}
}
