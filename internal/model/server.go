package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Classifier turns an image into a probability for every label it knows.
type Classifier interface {
	Predict(ctx context.Context, img image.Image) (Classification, error)
	Labels() []string
	Path() string
	Loaded() bool
}

// Server runs the ONNX export of the hair-type model. The session binds a
// single input and output tensor, so predictions are serialised.
type Server struct {
	mu           sync.Mutex
	path         string
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// ReadMetadata loads the sidecar JSON describing the model and fills in defaults.
func ReadMetadata(metadataPath string) (Metadata, error) {
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(metadata.Classes) == 0 {
		return Metadata{}, errors.New("metadata lists no classes")
	}
	metadata.applyDefaults()
	return metadata, nil
}

func NewServer(modelPath, metadataPath, libPath string) (*Server, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found at %s: %w", modelPath, err)
	}

	metadata, err := ReadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		path:         modelPath,
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *Server) Predict(ctx context.Context, img image.Image) (Classification, error) {
	input, err := Preprocess(img, s.Metadata)
	if err != nil {
		return nil, err
	}
	return s.PredictTensor(ctx, input)
}

// PredictTensor runs the model on an already preprocessed CHW tensor.
func (s *Server) PredictTensor(ctx context.Context, input []float32) (Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("model session is closed")
	}

	data := s.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("expected %d input values, got %d", len(data), len(input))
	}
	copy(data, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := make([]float32, len(s.Metadata.Classes))
	copy(scores, s.outputTensor.GetData())
	return toClassification(s.Metadata, scores), nil
}

func (s *Server) Labels() []string {
	return append([]string(nil), s.Metadata.Classes...)
}

func (s *Server) Path() string { return s.path }

func (s *Server) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	ort.DestroyEnvironment()
}

// toClassification labels raw model scores, turning logits into probabilities
// when the graph does not already end in a softmax.
func toClassification(meta Metadata, scores []float32) Classification {
	if meta.Softmax {
		scores = Softmax(scores)
	}
	out := make(Classification, len(meta.Classes))
	for i, label := range meta.Classes {
		out[label] = scores[i]
	}
	return out
}

// Unavailable stands in for a model that failed to load, so the rest of the
// server can keep running. Every prediction returns the load error.
type Unavailable struct {
	ModelPath string
	Err       error
}

func (u *Unavailable) Predict(context.Context, image.Image) (Classification, error) {
	return nil, fmt.Errorf("model not loaded: %w", u.Err)
}

func (u *Unavailable) Labels() []string { return nil }
func (u *Unavailable) Path() string     { return u.ModelPath }
func (u *Unavailable) Loaded() bool     { return false }
