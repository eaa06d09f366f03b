package routeopt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Delivery is one stop to be planned: an order, its address and the time
// window the customer accepted at checkout.
type Delivery struct {
	OrderID         string `json:"orderId"`
	Address         string `json:"address"`
	TimeWindowStart string `json:"timeWindowStart"`
	TimeWindowEnd   string `json:"timeWindowEnd"`
}

// Input is a batch of deliveries plus the depot every route starts and ends
// at.
type Input struct {
	Deliveries   []Delivery `json:"deliveries"`
	DepotAddress string     `json:"depotAddress"`
}

func (in Input) Validate() error {
	if strings.TrimSpace(in.DepotAddress) == "" {
		return fmt.Errorf("routeopt: depot address is required")
	}
	if len(in.Deliveries) == 0 {
		return fmt.Errorf("routeopt: at least one delivery is required")
	}
	for i, d := range in.Deliveries {
		if d.OrderID == "" {
			return fmt.Errorf("routeopt: delivery %d: order id is required", i)
		}
		if strings.TrimSpace(d.Address) == "" {
			return fmt.Errorf("routeopt: delivery %d: address is required", i)
		}
		if d.TimeWindowStart == "" || d.TimeWindowEnd == "" {
			return fmt.Errorf("routeopt: delivery %d: time window is required", i)
		}
	}
	return nil
}

// Route is one driver's ordered stop list.
type Route struct {
	Route []Delivery `json:"route"`
}

type Output struct {
	OptimizedRoutes []Route `json:"optimizedRoutes"`
}

// Completer produces one chat completion for a prompt. Implementations wrap a
// remote model API or, in tests, a canned response.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts map[string]any) (string, error)
	Model() string
}

// Optimizer plans delivery routes by prompting a model and parsing its JSON
// answer. The parse is all or nothing: a response that does not decode into
// the output schema is an error, never a partial plan.
type Optimizer struct {
	completer Completer
}

func NewOptimizer(c Completer) *Optimizer {
	return &Optimizer{completer: c}
}

const systemPrompt = "You are a route optimization expert for a water delivery service. Respond with a single JSON object only, no prose."

func buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Given a list of water delivery orders, their addresses, and delivery time windows, create optimized delivery routes starting and ending at the depot address.\n\nDeliveries:\n")
	for _, d := range in.Deliveries {
		fmt.Fprintf(&b, "- Order ID: %s, Address: %s, Time Window: %s - %s\n",
			d.OrderID, d.Address, d.TimeWindowStart, d.TimeWindowEnd)
	}
	fmt.Fprintf(&b, "\nDepot Address: %s\n", in.DepotAddress)
	b.WriteString("\nOutput a JSON object of the form {\"optimizedRoutes\": [{\"route\": [{\"orderId\": ..., \"address\": ..., \"timeWindowStart\": ..., \"timeWindowEnd\": ...}]}]} and nothing else.\n")
	return b.String()
}

func (o *Optimizer) Optimize(ctx context.Context, in Input) (Output, error) {
	if err := in.Validate(); err != nil {
		return Output{}, err
	}

	raw, err := o.completer.Complete(ctx, buildPrompt(in), map[string]any{
		"system":      systemPrompt,
		"temperature": 0.2,
	})
	if err != nil {
		return Output{}, fmt.Errorf("routeopt: completion failed: %w", err)
	}

	var out Output
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return Output{}, fmt.Errorf("routeopt: model returned unparseable plan: %w", err)
	}
	if len(out.OptimizedRoutes) == 0 {
		return Output{}, fmt.Errorf("routeopt: model returned no routes")
	}
	return out, nil
}

// stripFences tolerates models that wrap JSON in a markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
