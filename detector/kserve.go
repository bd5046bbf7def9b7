package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-person-detect/images"
	"github.com/nvr-ai/go-person-detect/postprocess"
)

// inferTensor is one named tensor on the KServe V2 wire, both directions.
type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int64   `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferRequest struct {
	Inputs []inferTensor `json:"inputs"`
}

type inferResponse struct {
	ModelName string        `json:"model_name"`
	Outputs   []inferTensor `json:"outputs"`
}

// KServeDetector runs inference against a remote KServe V2 REST endpoint.
// Preprocessing and post-processing happen locally; only the letterboxed
// tensor crosses the wire. Safe for concurrent use.
type KServeDetector struct {
	cfg      Config
	pipeline *postprocess.Pipeline
	client   *http.Client
	baseURL  string
}

// NewKServeDetector builds a client for the model served at cfg.Endpoint.
func NewKServeDetector(cfg Config) (*KServeDetector, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("kserve: endpoint is required")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("kserve: model name is required")
	}

	log.Printf("🚀 KServe engine ready: %s model %s", cfg.Endpoint, cfg.ModelName)
	return &KServeDetector{
		cfg:      cfg,
		pipeline: pipelineFor(cfg),
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.Endpoint, "/"),
	}, nil
}

// CheckHealth probes the server's V2 liveness endpoint.
func (d *KServeDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/v2/health/live", nil)
	if err != nil {
		return errors.Wrap(err, "kserve: building health request")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "kserve: health check")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("kserve: server not live, status %d", resp.StatusCode)
	}
	return nil
}

// DetectPersons letterboxes the frame, ships the tensor to the server and
// post-processes the returned raw output into person detections.
func (d *KServeDetector) DetectPersons(ctx context.Context, img image.Image) (postprocess.DetectionSet, error) {
	bounds := img.Bounds()
	chw, _, err := images.LetterboxToCHW(img, d.cfg.CanvasSize)
	if err != nil {
		return nil, err
	}

	size := int64(d.cfg.CanvasSize)
	payload, err := json.Marshal(inferRequest{
		Inputs: []inferTensor{{
			Name:     d.cfg.InputName,
			Shape:    []int64{1, 3, size, size},
			Datatype: "FP32",
			Data:     chw,
		}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "kserve: encoding request")
	}

	url := fmt.Sprintf("%s/v2/models/%s/infer", d.baseURL, d.cfg.ModelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "kserve: building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "kserve: inference call")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("kserve: inference failed, status %d: %s", resp.StatusCode, body)
	}

	var parsed inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "kserve: decoding response")
	}

	out, err := selectOutput(parsed.Outputs, d.cfg.OutputName)
	if err != nil {
		return nil, err
	}

	shape := make([]int, len(out.Shape))
	for i, s := range out.Shape {
		shape[i] = int(s)
	}
	raw := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out.Data))
	return d.pipeline.Run(raw, d.cfg.Layout, bounds.Dy(), bounds.Dx())
}

// selectOutput picks the named output tensor, falling back to a sole
// unnamed-match output.
func selectOutput(outputs []inferTensor, name string) (inferTensor, error) {
	for _, out := range outputs {
		if out.Name == name {
			return out, nil
		}
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return inferTensor{}, errors.Errorf("kserve: response has no output named %q among %d outputs", name, len(outputs))
}

// ModelInfo returns information about the remote model.
func (d *KServeDetector) ModelInfo() map[string]interface{} {
	opts := d.pipeline.Options()
	return map[string]interface{}{
		"engine":               "kserve",
		"endpoint":             d.baseURL,
		"model_name":           d.cfg.ModelName,
		"canvas_size":          d.cfg.CanvasSize,
		"confidence_threshold": opts.ConfThreshold,
		"iou_threshold":        opts.IoUThreshold,
		"output_layout":        d.cfg.Layout.String(),
		"class":                opts.ClassName,
	}
}

// Close drops idle connections. The detector can still be reused afterwards;
// closing only releases pooled resources.
func (d *KServeDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
