package routeopt

import (
	"context"
	"encoding/json"
	"regexp"
)

// MockCompleter answers without a network call. It echoes every delivery it
// finds in the prompt back as a single route, in prompt order, which is enough
// to exercise the parse and validation paths in tests and local development.
type MockCompleter struct {
	model string
}

var promptLine = regexp.MustCompile(`- Order ID: (.+), Address: (.+), Time Window: (.+) - (.+)`)

func NewMockCompleter(model string) *MockCompleter {
	return &MockCompleter{model: model}
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	var stops []Delivery
	for _, match := range promptLine.FindAllStringSubmatch(prompt, -1) {
		stops = append(stops, Delivery{
			OrderID:         match[1],
			Address:         match[2],
			TimeWindowStart: match[3],
			TimeWindowEnd:   match[4],
		})
	}
	out, err := json.Marshal(Output{OptimizedRoutes: []Route{{Route: stops}}})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (m *MockCompleter) Model() string { return m.model + "-mock" }

var _ Completer = (*MockCompleter)(nil)
