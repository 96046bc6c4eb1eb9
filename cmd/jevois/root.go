// Package jevois implements the CLI harness (spec §8's CLI surface): it
// drives a pipeline.Controller over a directory of image files, or a run of
// synthetic solid-color frames, standing in for the camera capture loop
// spec.md §1 places out of scope.
package jevois

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	_ "github.com/deepteams/webp"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/harshmittal2210/jevois/pipeline"
	"github.com/harshmittal2210/jevois/zoo"
)

var (
	zooPath      string
	pipeName     string
	filterName   string
	framesDir    string
	syntheticN   int
	outDir       string
	logLevel     string
	readyTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "jevois",
	Short: "Drive a smart-camera inference pipeline over a directory of frames",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pipe over --frames or --synthetic test frames",
	RunE:  runPipeline,
}

// Execute runs the root command, exiting the process with status 1 on
// failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&zooPath, "zoo", "", "path to the zoo YAML file (required)")
	runCmd.Flags().StringVar(&pipeName, "pipe", "", "pipe name to select from the zoo (required)")
	runCmd.Flags().StringVar(&filterName, "filter", "All", "backend filter: All, OpenCV, NPU, TPU, VPU")
	runCmd.Flags().StringVar(&framesDir, "frames", "", "directory of image files to process, in name order")
	runCmd.Flags().IntVar(&syntheticN, "synthetic", 0, "process n generated solid-color test frames instead of --frames")
	runCmd.Flags().StringVar(&outDir, "out", "", "directory to write overlay PNGs to (optional)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().DurationVar(&readyTimeout, "ready-timeout", 10*time.Second, "max time to wait for the network to finish loading")
	_ = runCmd.MarkFlagRequired("zoo")
	_ = runCmd.MarkFlagRequired("pipe")

	rootCmd.AddCommand(runCmd)
}

type stdoutReporter struct{ prefix string }

func (r stdoutReporter) SendSerial(line string) {
	fmt.Printf("%s: %s\n", r.prefix, line)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logrus.SetLevel(level)

	filter, err := zoo.ParseFilter(filterName)
	if err != nil {
		return err
	}

	frames, names, err := loadFrames()
	if err != nil {
		return err
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating --out directory: %w", err)
		}
	}

	ctrl := pipeline.NewController(zooPath, filter, pipeName, false)
	if err := waitUntilLoaded(ctrl, frames[0]); err != nil {
		return err
	}

	for i, frame := range frames {
		name := names[i]
		var overlay draw.Image
		if outDir != "" {
			rgba := image.NewRGBA(frame.Bounds())
			draw.Draw(rgba, rgba.Bounds(), frame, frame.Bounds().Min, draw.Src)
			overlay = rgba
		}

		ctrl.Process(frame, stdoutReporter{prefix: name}, overlay)
		logrus.WithField("frame", name).WithField("state", ctrl.State().String()).Debug("processed frame")
		for _, line := range ctrl.Stats().LastInfo {
			logrus.Debug(line)
		}

		if overlay != nil {
			if err := writeOverlayPNG(overlay.(*image.RGBA), name); err != nil {
				return err
			}
		}
	}

	stats := ctrl.Stats()
	fmt.Printf("frames=%d preproc=%.2fms network=%.2fms postproc=%.2fms\n",
		stats.Frames, stats.PreprocMS, stats.NetworkMS, stats.PostprocMS)
	return nil
}

// waitUntilLoaded drives the controller's reconfiguration-then-load sequence
// to completion, feeding it the first frame repeatedly until the network
// reports Ready (or readyTimeout elapses).
func waitUntilLoaded(ctrl *pipeline.Controller, first image.Image) error {
	deadline := time.Now().Add(readyTimeout)
	for {
		ctrl.Process(first, nil, nil)
		switch ctrl.State() {
		case pipeline.Ready, pipeline.RunningSync:
			return nil
		case pipeline.Error:
			return fmt.Errorf("pipeline failed to load: %w", ctrl.Stats().LastError)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for pipe %q to finish loading", pipeName)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func loadFrames() ([]image.Image, []string, error) {
	if syntheticN > 0 {
		return syntheticFrames(syntheticN)
	}
	if framesDir == "" {
		return nil, nil, fmt.Errorf("one of --frames or --synthetic is required")
	}
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading --frames directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var frames []image.Image
	var kept []string
	for _, name := range names {
		f, err := os.Open(filepath.Join(framesDir, name))
		if err != nil {
			return nil, nil, err
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			logrus.WithError(err).WithField("file", name).Warn("skipping undecodable frame")
			continue
		}
		frames = append(frames, img)
		kept = append(kept, name)
	}
	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("no decodable frames found in %q", framesDir)
	}
	return frames, kept, nil
}

var syntheticPalette = []color.RGBA{
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
}

func syntheticFrames(n int) ([]image.Image, []string, error) {
	const w, h = 320, 240
	frames := make([]image.Image, n)
	names := make([]string, n)
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: syntheticPalette[i%len(syntheticPalette)]}, image.Point{}, draw.Src)
		frames[i] = img
		names[i] = fmt.Sprintf("synthetic-%04d", i)
	}
	return frames, names, nil
}

func writeOverlayPNG(img *image.RGBA, name string) error {
	base := name[:len(name)-len(filepath.Ext(name))]
	f, err := os.Create(filepath.Join(outDir, base+".png"))
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
