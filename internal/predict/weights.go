// Package predict scores race entries and ranks them by win likelihood.
package predict

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// baseWeightSum is what the six factor weights add up to. The remaining
// 0.10 of the composite is reserved for the bounded contextual bonus.
const baseWeightSum = 0.90

// Weights are the factor weights of the composite score.
type Weights struct {
	Speed   float64 `yaml:"speed"`
	Class   float64 `yaml:"class"`
	Form    float64 `yaml:"form"`
	Workout float64 `yaml:"workout"`
	Jockey  float64 `yaml:"jockey"`
	Trainer float64 `yaml:"trainer"`
}

// DefaultWeights returns the standard weighting profile.
func DefaultWeights() Weights {
	return Weights{
		Speed:   0.25,
		Class:   0.15,
		Form:    0.20,
		Workout: 0.15,
		Jockey:  0.08,
		Trainer: 0.07,
	}
}

// Sum returns the total of all factor weights.
func (w Weights) Sum() float64 {
	return w.Speed + w.Class + w.Form + w.Workout + w.Jockey + w.Trainer
}

// Validate checks that a weights profile is internally consistent.
func (w Weights) Validate() error {
	var errs []string

	named := map[string]float64{
		"speed":   w.Speed,
		"class":   w.Class,
		"form":    w.Form,
		"workout": w.Workout,
		"jockey":  w.Jockey,
		"trainer": w.Trainer,
	}
	for name, v := range named {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := w.Sum()
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if math.Abs(sum-baseWeightSum) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to %.2f, got %.2f", baseWeightSum, sum))
	}

	if len(errs) > 0 {
		return eris.Errorf("predict: weights validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadWeights reads a weights profile from a YAML file. The file carries a
// top-level "weights" key; omitted factors inherit the defaults.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, eris.Wrapf(err, "predict: read weights %s", path)
	}

	wrapper := struct {
		Weights Weights `yaml:"weights"`
	}{Weights: DefaultWeights()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Weights{}, eris.Wrap(err, "predict: parse weights")
	}

	w := wrapper.Weights
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	return w, nil
}
