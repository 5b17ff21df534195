package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Undefined is rendered for headline fields the service did not send.
const Undefined = "undefined"

// Analyzer produces an analysis for an uploaded file.
type Analyzer interface {
	Analyze(ctx context.Context, filename string, needsClassification bool) (Result, error)
}

// Result is the service's analysis payload kept as an open record: no schema
// is assumed and any field may be missing.
type Result struct {
	raw []byte
}

func Parse(raw []byte) (Result, error) {
	if !gjson.ValidBytes(raw) {
		return Result{}, fmt.Errorf("analysis payload is not valid JSON")
	}
	return Result{raw: raw}, nil
}

func (r Result) Raw() json.RawMessage {
	if len(r.raw) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(r.raw)
}

// Lookup finds a field inside the prediction object first, then at the top
// level.
func (r Result) Lookup(field string) (gjson.Result, bool) {
	pred := gjson.GetBytes(r.raw, "prediction")
	if pred.IsObject() {
		if v := pred.Get(gjson.Escape(field)); v.Exists() {
			return v, true
		}
	}
	v := gjson.GetBytes(r.raw, gjson.Escape(field))
	return v, v.Exists()
}

// Prediction handles both {"prediction": 1} and
// {"prediction": {"prediction": 1, ...}}.
func (r Result) Prediction() (gjson.Result, bool) {
	pred := gjson.GetBytes(r.raw, "prediction")
	if !pred.Exists() {
		return gjson.Result{}, false
	}
	if pred.IsObject() {
		v := pred.Get("prediction")
		return v, v.Exists()
	}
	return pred, true
}

type Field struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// View is the flattened form the results page renders.
type View struct {
	Filename       string  `json:"filename"`
	Prediction     string  `json:"prediction"`
	Diagnosis      string  `json:"diagnosis"`
	Probability    string  `json:"probability"`
	Confidence     string  `json:"confidence"`
	Classification string  `json:"classification,omitempty"`
	Metrics        []Field `json:"metrics"`
}

var headline = map[string]bool{
	"prediction":  true,
	"diagnosis":   true,
	"probability": true,
	"confidence":  true,
}

func (r Result) View(filename string) View {
	v := View{
		Filename:    filename,
		Prediction:  Undefined,
		Diagnosis:   Undefined,
		Probability: Undefined,
		Confidence:  Undefined,
		Metrics:     []Field{},
	}

	if p, ok := r.Prediction(); ok {
		v.Prediction = render(p)
	}
	if d, ok := r.Lookup("diagnosis"); ok {
		v.Diagnosis = render(d)
	}
	if p, ok := r.Lookup("probability"); ok {
		v.Probability = render(p)
	}
	if c, ok := r.Lookup("confidence"); ok {
		v.Confidence = render(c)
	}
	if c := gjson.GetBytes(r.raw, "classification"); c.Exists() {
		v.Classification = render(c)
	}

	pred := gjson.GetBytes(r.raw, "prediction")
	if pred.IsObject() {
		pred.ForEach(func(key, value gjson.Result) bool {
			if !headline[key.String()] {
				v.Metrics = append(v.Metrics, Field{
					Key:   key.String(),
					Label: label(key.String()),
					Value: render(value),
				})
			}
			return true
		})
		sort.SliceStable(v.Metrics, func(i, j int) bool { return v.Metrics[i].Key < v.Metrics[j].Key })
	}

	return v
}

func render(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return "null"
	case gjson.String:
		return v.Str
	default:
		return v.Raw
	}
}

// label turns "tremor_score" into "Tremor score".
func label(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
