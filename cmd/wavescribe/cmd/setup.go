package cmd

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wavescribe/wavescribe/pkg/backend"
	"github.com/wavescribe/wavescribe/pkg/backend/mock"
	"github.com/wavescribe/wavescribe/pkg/backend/openai"
	"github.com/wavescribe/wavescribe/pkg/config"
	"github.com/wavescribe/wavescribe/pkg/janitor"
	"github.com/wavescribe/wavescribe/pkg/jobstore"
	"github.com/wavescribe/wavescribe/pkg/metrics"
	"github.com/wavescribe/wavescribe/pkg/postprocess"
	"github.com/wavescribe/wavescribe/pkg/progress"
	"github.com/wavescribe/wavescribe/pkg/scheduler"
)

// pipeline bundles the assembled long-lived components.
type pipeline struct {
	store    *jobstore.Store
	bus      *progress.Bus
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sched    *scheduler.Scheduler
	janitor  *janitor.Janitor
}

// buildPipeline wires store, bus, backend, scheduler and janitor from the
// loaded configuration.
func buildPipeline(cfg *config.Config) *pipeline {
	store := jobstore.New()
	bus := progress.NewBus(progress.DefaultQueueDepth)
	registry := prometheus.NewRegistry()
	mets := metrics.New(registry)

	var be backend.SpeechBackend
	if cfg.Backend.Model == "mock" {
		be = mock.New()
	} else {
		be = openai.New(openai.Config{
			APIKey:  cfg.Backend.APIKey,
			BaseURL: cfg.Backend.BaseURL,
			ModelID: cfg.Backend.Model,
			Timeout: cfg.Backend.Timeout,
		})
	}

	var punctuator postprocess.Punctuator
	if cfg.Punctuation.Enabled {
		punctuator = postprocess.NewModelPunctuator(
			cfg.Backend.APIKey, cfg.Backend.BaseURL, cfg.Punctuation.Model)
	}
	post := postprocess.NewProcessor(punctuator)

	sched := scheduler.New(cfg.Scheduler, store, bus, be, post, mets)

	janCfg := cfg.Janitor
	janCfg.TempDir = cfg.Scheduler.TempDir
	jan := janitor.New(janCfg, store, sched, bus, mets)

	return &pipeline{
		store:    store,
		bus:      bus,
		registry: registry,
		metrics:  mets,
		sched:    sched,
		janitor:  jan,
	}
}
