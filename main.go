package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-person-detect/api"
	"github.com/nvr-ai/go-person-detect/config"
	"github.com/nvr-ai/go-person-detect/detector"
	"github.com/nvr-ai/go-person-detect/images"
	"github.com/nvr-ai/go-person-detect/postprocess"
	"github.com/nvr-ai/go-person-detect/util"
	"github.com/nvr-ai/go-person-detect/video"
)

// Supported file extensions
var (
	supportedVideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}
	supportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp"}
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}

	var (
		serve      bool
		videoPath  string
		imagePath  string
		dirPath    string
		stride     int
		layoutName string
	)
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "Inference engine: dnn, ort or kserve")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Path to YOLO ONNX model file")
	flag.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "KServe inference server base URL")
	flag.StringVar(&cfg.ModelName, "model-name", cfg.ModelName, "Model name on the inference server")
	confidence := flag.Float64("confidence", float64(cfg.ConfThreshold), "Detection confidence threshold")
	iou := flag.Float64("iou", float64(cfg.IoUThreshold), "NMS IoU threshold")
	flag.IntVar(&cfg.CanvasSize, "canvas", cfg.CanvasSize, "Square model input size")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Detector pool size for batch processing")
	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP server bind address")
	flag.BoolVar(&serve, "serve", false, "Run the HTTP detection API")
	flag.StringVar(&videoPath, "video", "", "Path to video file (.mp4, .avi, .mov, .mkv)")
	flag.StringVar(&imagePath, "image", "", "Path to image file (.jpg, .jpeg, .png, .webp, .bmp)")
	flag.StringVar(&dirPath, "dir", "", "Path to directory of frame images")
	flag.IntVar(&stride, "stride", 1, "Process every Nth video frame")
	flag.StringVar(&layoutName, "layout", "transposed", "Raw output layout: interleaved, transposed or prefiltered")
	flag.Parse()

	cfg.ConfThreshold = float32(*confidence)
	cfg.IoUThreshold = float32(*iou)
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	layout, err := postprocess.ParseLayout(layoutName)
	if err != nil {
		log.Fatal(err)
	}

	inputs := 0
	for _, set := range []bool{serve, videoPath != "", imagePath != "", dirPath != ""} {
		if set {
			inputs++
		}
	}
	if inputs != 1 {
		log.Fatal("specify exactly one of -serve, -video, -image or -dir")
	}

	factory := detectorFactory(cfg, layout)

	fmt.Printf("\n🚀 Person Detection Pipeline\n")
	fmt.Printf("=====================================\n")
	fmt.Printf("   🤖 Engine: %s\n", cfg.Mode)
	if cfg.Mode == "kserve" {
		fmt.Printf("   🌐 Endpoint: %s (model %s)\n", cfg.Endpoint, cfg.ModelName)
	} else {
		fmt.Printf("   🎯 Model: %s\n", cfg.ModelPath)
	}
	fmt.Printf("   📊 Confidence threshold: %.2f\n", cfg.ConfThreshold)
	fmt.Printf("   📐 NMS IoU threshold: %.2f\n", cfg.IoUThreshold)
	fmt.Printf("   🖼️  Canvas: %dx%d, layout %s\n", cfg.CanvasSize, cfg.CanvasSize, layout)
	fmt.Printf("=====================================\n\n")

	ctx := context.Background()

	switch {
	case serve:
		runServer(cfg, factory)
	case videoPath != "":
		if err := validateFile(videoPath, supportedVideoExtensions); err != nil {
			log.Fatal(err)
		}
		runVideo(ctx, cfg, factory, videoPath, stride)
	case imagePath != "":
		if err := validateFile(imagePath, supportedImageExtensions); err != nil {
			log.Fatal(err)
		}
		runImage(ctx, factory, imagePath)
	case dirPath != "":
		runDirectory(ctx, cfg, factory, dirPath)
	}
}

// detectorFactory returns a constructor for the configured engine.
func detectorFactory(cfg config.Config, layout postprocess.LayoutKind) func() (detector.Detector, error) {
	dcfg := detector.DefaultConfig()
	dcfg.ModelPath = cfg.ModelPath
	dcfg.Endpoint = cfg.Endpoint
	dcfg.ModelName = cfg.ModelName
	dcfg.CanvasSize = cfg.CanvasSize
	dcfg.ConfThreshold = cfg.ConfThreshold
	dcfg.IoUThreshold = cfg.IoUThreshold
	dcfg.Layout = layout

	switch cfg.Mode {
	case "dnn":
		return func() (detector.Detector, error) { return detector.NewDNNDetector(dcfg) }
	case "ort":
		return func() (detector.Detector, error) { return detector.NewORTDetector(dcfg) }
	default:
		return func() (detector.Detector, error) { return detector.NewKServeDetector(dcfg) }
	}
}

func runServer(cfg config.Config, factory func() (detector.Detector, error)) {
	d, err := factory()
	if err != nil {
		log.Fatalf("Failed to initialize detector: %v", err)
	}
	defer d.Close()

	server := api.NewServer(d, cfg.MaxUploadSizeMB)
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
}

func runVideo(ctx context.Context, cfg config.Config, factory func() (detector.Detector, error), path string, stride int) {
	info, err := video.ProbeFile(path)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("🎬 %s: %dx%d @ %.1f fps, %d frames\n", path, info.Width, info.Height, info.FPS, info.FrameCount)

	pool, err := video.NewDetectorPool(cfg.Workers, factory)
	if err != nil {
		log.Fatalf("Failed to initialize detector pool: %v", err)
	}
	defer pool.Close()

	proc := video.NewProcessor(pool, cfg.Workers, stride)
	metrics, err := proc.ProcessVideo(ctx, path, printFrameResult)
	if err != nil {
		log.Fatal(err)
	}
	printStreamMetrics(metrics)
}

func runImage(ctx context.Context, factory func() (detector.Detector, error), path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	img, err := images.Decode(data)
	if err != nil {
		log.Fatalf("Failed to decode %s: %v", path, err)
	}

	d, err := factory()
	if err != nil {
		log.Fatalf("Failed to initialize detector: %v", err)
	}
	defer d.Close()

	detections, err := d.DetectPersons(ctx, img)
	if err != nil {
		log.Fatal(err)
	}

	summary := postprocess.Summarize(detections)
	fmt.Printf("Found %d persons in %s\n", summary.TotalPersons, path)
	for i, det := range detections {
		fmt.Printf("  %d: %s\n", i+1, det)
	}
	if summary.TotalPersons > 0 {
		fmt.Printf("Confidence avg %.3f, max %.3f, min %.3f, high-confidence %d\n",
			summary.AvgConfidence, summary.MaxConfidence, summary.MinConfidence, summary.HighConfCount)
	}
}

func runDirectory(ctx context.Context, cfg config.Config, factory func() (detector.Detector, error), dir string) {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		log.Fatal(err)
	}
	if len(files) == 0 {
		log.Fatalf("No image files found in %s", dir)
	}
	fmt.Printf("📂 %s: %d frames\n", dir, len(files))

	pool, err := video.NewDetectorPool(cfg.Workers, factory)
	if err != nil {
		log.Fatalf("Failed to initialize detector pool: %v", err)
	}
	defer pool.Close()

	proc := video.NewProcessor(pool, cfg.Workers, 1)
	metrics, err := proc.ProcessImages(ctx, files, printFrameResult)
	if err != nil {
		log.Fatal(err)
	}
	printStreamMetrics(metrics)
}

func printFrameResult(res video.FrameResult) {
	if res.Err != nil {
		fmt.Printf("[Frame %d] ❌ %v\n", res.SourceFrame, res.Err)
		return
	}
	fmt.Printf("[Frame %d] 👤 %d persons | inference %.2fms", res.SourceFrame, res.Summary.TotalPersons, res.InferenceMs)
	if res.Summary.TotalPersons > 0 {
		fmt.Printf(" | conf avg %.2f max %.2f", res.Summary.AvgConfidence, res.Summary.MaxConfidence)
	}
	fmt.Printf("\n")
}

func printStreamMetrics(m video.StreamMetrics) {
	fmt.Printf("\n📈 Done: %d/%d frames processed, %d failed, %d persons total, %.1f fps\n",
		m.FramesProcessed, m.FramesRead, m.FramesFailed, m.TotalPersons, m.FramesPerSecond)
}

// validateFile checks if the file exists and has a supported extension.
func validateFile(filePath string, supportedExtensions []string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	for _, supportedExt := range supportedExtensions {
		if ext == supportedExt {
			return nil
		}
	}
	return fmt.Errorf("unsupported file extension: %s. Supported extensions: %v", ext, supportedExtensions)
}
