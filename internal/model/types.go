package model

import "sort"

// Metadata describes the exported classifier: tensor layout, label vocabulary
// and the preprocessing it was trained with.
type Metadata struct {
	InputShape  []int64    `json:"input_shape"`
	OutputShape []int64    `json:"output_shape"`
	Classes     []string   `json:"classes"`
	ImageSize   int        `json:"image_size"`
	Mean        [3]float32 `json:"mean"`
	Std         [3]float32 `json:"std"`
	InputName   string     `json:"input_name"`
	OutputName  string     `json:"output_name"`
	// Softmax is set when the exported graph ends in raw logits.
	Softmax bool `json:"softmax"`
}

var (
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

func (m *Metadata) applyDefaults() {
	if m.ImageSize == 0 {
		m.ImageSize = 224
	}
	if m.Mean == ([3]float32{}) {
		m.Mean = imageNetMean
	}
	if m.Std == ([3]float32{}) {
		m.Std = imageNetStd
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if len(m.InputShape) == 0 {
		s := int64(m.ImageSize)
		m.InputShape = []int64{1, 3, s, s}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
}

// Classification maps every label of the vocabulary to its probability.
type Classification map[string]float32

type LabelScore struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

// Top returns the n most probable labels, highest first. Ties keep label order.
func (c Classification) Top(n int) []LabelScore {
	out := make([]LabelScore, 0, len(c))
	for label, p := range c {
		out = append(out, LabelScore{Label: label, Probability: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability == out[j].Probability {
			return out[i].Label < out[j].Label
		}
		return out[i].Probability > out[j].Probability
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

type AnalyzeRequest struct {
	Image string `json:"image"`
}

type AnalyzeResponse struct {
	Classification Classification `json:"classification"`
}
