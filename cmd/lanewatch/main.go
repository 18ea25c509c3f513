package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanewatch-go/internal/api"
	"lanewatch-go/internal/capture"
	"lanewatch-go/internal/config"
	"lanewatch-go/internal/detect"
	"lanewatch-go/internal/lane"
	"lanewatch-go/internal/logging"
	"lanewatch-go/internal/metrics"
	"lanewatch-go/internal/overlay"
	"lanewatch-go/internal/pipeline"
	"lanewatch-go/internal/services/messaging"
	"lanewatch-go/internal/services/reporter"
	"lanewatch-go/internal/services/store"
	"lanewatch-go/internal/sink"
	"lanewatch-go/internal/track"
	"lanewatch-go/internal/webstream"
)

func main() {
	os.Exit(run())
}

// run holds the real main so deferred cleanup survives the exit path.
func run() int {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Command line overrides for the knobs that change between runs
	var (
		source    = flag.String("source", "", "video source: file path, device index or stream URL")
		lanesFile = flag.String("lanes", "", "lane polygon file path")
		output    = flag.String("output", "", "annotated output video path")
		cameraID  = flag.String("camera-id", "", "camera identifier used in reports")
	)
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	if *source != "" {
		cfg.Source = *source
	}
	if *lanesFile != "" {
		cfg.LanesFile = *lanesFile
	}
	if *output != "" {
		cfg.OutputPath = *output
	}
	if *cameraID != "" {
		cfg.CameraID = *cameraID
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		tee, _, err := logging.StartLogdy(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Logdy UI failed to start")
		} else {
			log.Logger = log.Output(zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr}, tee))
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Configuration rejected")
		return 1
	}

	runID := uuid.NewString()
	log.Info().
		Str("run_id", runID).
		Str("camera_id", cfg.CameraID).
		Str("source", cfg.Source).
		Str("version", cfg.Version).
		Msg("Starting traffic analyzer")

	lanes, err := lane.Load(cfg.LanesFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load lane geometry")
		return 1
	}

	detector, err := detect.NewDNN(detect.Options{
		Weights:       cfg.ModelWeights,
		Config:        cfg.ModelConfig,
		Names:         cfg.ClassNames,
		InputSize:     cfg.InputSize,
		ConfThreshold: float32(cfg.ConfThreshold),
		NMSThreshold:  float32(cfg.NMSThreshold),
		TargetClasses: cfg.TargetClasses,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to load detection model")
		return 1
	}
	defer func() {
		if err := detector.Close(); err != nil {
			log.Warn().Err(err).Msg("Detector close failed")
		}
	}()

	src, err := capture.Open(cfg, logging.NewStageLogger(cfg, "capture"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to open video source")
		return 1
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Msg("Video source close failed")
		}
	}()

	var classes track.Equivalence
	if cfg.CollapseTrackClasses {
		classes = track.CollapseAll(detector.TargetIDs())
	} else {
		classes = track.Distinct(detector.TargetIDs())
	}
	tracker := track.NewIOU(track.Params{
		MatchIoU: float32(cfg.TrackMatchIoU),
		Buffer:   cfg.TrackBuffer,
		MinScore: float32(cfg.TrackMinScore),
		Classes:  classes,
	})

	annotator, err := overlay.New(cfg, lanes)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build overlay")
		return 1
	}

	presentLog := logging.NewStageLogger(cfg, "present")
	var sinks []pipeline.Sink
	if cfg.DisplayEnabled {
		title := fmt.Sprintf("lanewatch %s", cfg.CameraID)
		sinks = append(sinks, sink.NewDisplay(title, logging.WithSink(presentLog, "display")))
	}
	if cfg.OutputPath != "" {
		fps := src.FPS()
		if fps <= 0 {
			fps = float64(cfg.OutputFPS)
		}
		sinks = append(sinks, sink.NewFile(cfg.OutputPath, fps, logging.WithSink(presentLog, "file")))
	}
	var stream http.Handler
	if cfg.WebStreamEnabled {
		pub := webstream.NewPublisher(cfg.CameraID, cfg.MJPEGQuality, logging.NewServiceLogger(cfg, "webstream"))
		sinks = append(sinks, sink.NewWeb(pub))
		stream = pub
	}

	// Interval reports fan out to every enabled destination.
	rep := reporter.New()
	if cfg.NatsEnabled {
		nats, err := messaging.NewService(cfg, logging.NewServiceLogger(cfg, "nats"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to NATS")
			return 1
		}
		defer func() {
			if err := nats.Shutdown(); err != nil {
				log.Warn().Err(err).Msg("NATS shutdown failed")
			}
		}()
		rep.Add("nats", nats.Publish)
	}
	var db *store.Store
	if cfg.StoreEnabled {
		db, err = store.Open(cfg.StorePath, logging.NewServiceLogger(cfg, "store"))
		if err != nil {
			log.Error().Err(err).Msg("Failed to open report store")
			return 1
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("Report store close failed")
			}
		}()
		rep.Add("store", db.Save)
	}
	var reports pipeline.Reporter
	if !rep.Empty() {
		reports = rep
	}

	mets := metrics.New()

	pipe := pipeline.New(cfg, runID, lanes, pipeline.Deps{
		Source:    src,
		Detector:  detector,
		Tracker:   tracker,
		Reporter:  reports,
		Annotator: annotator,
		Sinks:     sinks,
		Metrics:   mets,
	})

	if cfg.HTTPEnabled {
		var history api.ReportReader
		if db != nil {
			history = db
		}
		apiServer := api.NewServer(cfg, logging.NewServiceLogger(cfg, "api"), pipe, history, stream, mets.Handler())
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error().Err(err).Msg("HTTP API failed")
			}
		}()
		defer func() {
			if err := apiServer.Stop(); err != nil {
				log.Warn().Err(err).Msg("HTTP API stop failed")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	if err := pipe.Run(ctx); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Pipeline failed")
		return 1
	}

	log.Info().Str("run_id", runID).Msg("Pipeline finished")
	return 0
}
