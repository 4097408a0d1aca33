package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"lungfuse/pkg/config"
	"lungfuse/pkg/fusion"
	"lungfuse/pkg/metrics"
	"lungfuse/pkg/persist"
	"lungfuse/pkg/slicestack"
	"lungfuse/pkg/visualization"
)

func main() {
	configPath := flag.String("config", "lungfuse.yaml", "YAML configuration file (defaults are used if missing)")
	workers := flag.Int("workers", 0, "Frames converted concurrently (default: config, then all cores)")
	renderDir := flag.String("render-dir", "", "Directory to save label slice renders")
	renderScale := flag.Int("render-scale", 0, "Integer upscaling of renders (default: config)")
	metricsFile := flag.String("metrics-file", "", "Write prometheus metrics to this textfile")
	upload := flag.Bool("upload", false, "Also upload the artifacts to the configured S3 bucket")
	verbose := flag.Bool("verbose", false, "Log per-structure details")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <destination> <source>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Println("ERROR: No source or data path provided, aborting!")
		flag.Usage()
		os.Exit(1)
	}
	outputDir := flag.Arg(0)
	sourceDir := flag.Arg(1)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LoadEnv(cfg)
	applyFlags(cfg, *workers, *renderDir, *renderScale, *metricsFile, *upload, *verbose)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	patient := filepath.Base(filepath.Clean(sourceDir))
	var recorder *metrics.Recorder
	params := &fusion.Params{
		SourceDir:  sourceDir,
		Structures: cfg.Structures,
		Naming:     slicestack.Naming{Prefix: cfg.Frames.Prefix, Suffix: cfg.Frames.Suffix},
		Decoder:    slicestack.DICOMDecoder{},
		Offset:     cfg.Processing.Offset,
		Workers:    cfg.Processing.Workers,
		Progress:   os.Stdout,
		Logger:     logger,
	}
	if cfg.Metrics.TextFile != "" {
		recorder = metrics.NewRecorder(patient)
		params.Recorder = recorder
	}

	fmt.Printf("Fusing %d structures for patient %s from %s\n", len(cfg.Structures), patient, sourceDir)
	ctx := context.Background()
	startTime := time.Now()

	result, runErr := fusion.NewFuser(params).Run(ctx)
	var overlapErr *fusion.CoordinateOverlapError
	if runErr != nil && !errors.As(runErr, &overlapErr) {
		log.Fatalf("Fusion failed: %v", runErr)
	}

	// the volume is persisted even when the overlap check failed; the
	// manifest marks it as suspect
	saved, err := persist.Save(ctx, persist.NewLocalStore(outputDir), "", cfg.Output.ArtifactName, result, cfg.Output.WriteManifest)
	if err != nil {
		log.Fatalf("Failed to save volume: %v", err)
	}
	fmt.Printf("Volume %v saved to: %s\n", result.Volume.Shape(), filepath.Join(outputDir, saved.Volume))

	if cfg.Storage.Upload {
		if err := uploadArtifacts(ctx, cfg, patient, result); err != nil {
			log.Fatalf("Upload failed: %v", err)
		}
	}

	if cfg.Render.Dir != "" {
		renderSlices(cfg, result)
	}

	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.Metrics.TextFile); err != nil {
			log.Printf("Warning: Failed to write metrics: %v", err)
		}
	}

	fmt.Println("\nStructure occupancy:")
	for _, o := range result.Occupancy {
		fmt.Printf("- %-16s id=%d voxels=%s slices=%d [%d..%d] mean/slice=%.1f sd=%.1f\n",
			o.Structure, o.LabelID, humanize.Comma(o.Voxels), o.OccupiedSlices,
			o.FirstSlice, o.LastSlice, o.Mean, o.StdDev)
	}
	fmt.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())

	if overlapErr != nil {
		fmt.Fprintf(os.Stderr, "ERROR: It seems like some coords overlap with other coords, meaning some data may have been lost: %v\n", overlapErr)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, workers int, renderDir string, renderScale int, metricsFile string, upload, verbose bool) {
	if workers > 0 {
		cfg.Processing.Workers = workers
	}
	if renderDir != "" {
		cfg.Render.Dir = renderDir
	}
	if renderScale > 0 {
		cfg.Render.Scale = renderScale
	}
	if metricsFile != "" {
		cfg.Metrics.TextFile = metricsFile
	}
	if upload {
		cfg.Storage.Upload = true
	}
	if verbose {
		cfg.Output.Verbose = true
	}
}

func uploadArtifacts(ctx context.Context, cfg *config.Config, patient string, result *fusion.Result) error {
	store, err := persist.NewS3Store(persist.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return err
	}

	saved, err := persist.Save(ctx, store, patient, cfg.Output.ArtifactName, result, cfg.Output.WriteManifest)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded to s3://%s/%s\n", cfg.Storage.Bucket, saved.Volume)
	return nil
}

func renderSlices(cfg *config.Config, result *fusion.Result) {
	viewer := visualization.NewViewer(result.Volume, result.Structures, cfg.Render.Scale, true)
	for _, axis := range cfg.Render.Axes {
		axisDir := filepath.Join(cfg.Render.Dir, result.PatientID, axis)
		fmt.Printf("Saving %s-axis renders to: %s\n", axis, axisDir)
		if _, err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
			log.Printf("Warning: Failed to save %s-axis renders: %v", axis, err)
		}
	}
}
