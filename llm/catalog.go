package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"
)

// CostTier is one bracket of a tiered price schedule. Hi is nil for an
// unbounded upper end.
type CostTier struct {
	Lo   int
	Hi   *int
	Cost float64
}

type costTierWire struct {
	Range []*int  `json:"range" yaml:"range"`
	Cost  float64 `json:"cost" yaml:"cost"`
}

func (t CostTier) contains(tokens int) bool {
	return tokens >= t.Lo && (t.Hi == nil || tokens <= *t.Hi)
}

// TokenCost is a per-token price: either a flat scalar or an ordered tier
// list. The first tier whose range contains the token count applies; a tier
// list that matches nothing costs 0.
type TokenCost struct {
	flat   float64
	tiers  []CostTier
	tiered bool
}

func FlatCost(perToken float64) TokenCost { return TokenCost{flat: perToken} }

func TieredCost(tiers ...CostTier) TokenCost { return TokenCost{tiers: tiers, tiered: true} }

// For returns the total cost for the given token count.
func (tc TokenCost) For(tokens int) float64 {
	if !tc.tiered {
		return tc.flat * float64(tokens)
	}
	for _, tier := range tc.tiers {
		if tier.contains(tokens) {
			return tier.Cost * float64(tokens)
		}
	}
	return 0
}

func (tc TokenCost) MarshalJSON() ([]byte, error) {
	if !tc.tiered {
		return json.Marshal(tc.flat)
	}
	wire := make([]costTierWire, 0, len(tc.tiers))
	for _, t := range tc.tiers {
		lo := t.Lo
		wire = append(wire, costTierWire{Range: []*int{&lo, t.Hi}, Cost: t.Cost})
	}
	return json.Marshal(wire)
}

func (tc *TokenCost) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var wire []costTierWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		return tc.fromWire(wire)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*tc = FlatCost(f)
	return nil
}

func (tc *TokenCost) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var wire []costTierWire
		if err := node.Decode(&wire); err != nil {
			return err
		}
		return tc.fromWire(wire)
	}
	var f float64
	if err := node.Decode(&f); err != nil {
		return err
	}
	*tc = FlatCost(f)
	return nil
}

func (tc *TokenCost) fromWire(wire []costTierWire) error {
	tiers := make([]CostTier, 0, len(wire))
	for _, w := range wire {
		if len(w.Range) != 2 || w.Range[0] == nil {
			return fmt.Errorf("cost tier range must be [lo, hi] with hi null for unbounded")
		}
		tiers = append(tiers, CostTier{Lo: *w.Range[0], Hi: w.Range[1], Cost: w.Cost})
	}
	*tc = TieredCost(tiers...)
	return nil
}

// ModelConfig is one model entry of a provider catalog.
type ModelConfig struct {
	InputTokenCost  TokenCost `json:"input_token_cost" yaml:"input_token_cost"`
	OutputTokenCost TokenCost `json:"output_token_cost" yaml:"output_token_cost"`
}

// ProviderConfig is the static per-provider catalog, read-only after load.
type ProviderConfig struct {
	ID     string                 `json:"id" yaml:"id"`
	Name   string                 `json:"name" yaml:"name"`
	Models map[string]ModelConfig `json:"models" yaml:"models"`
}

// Model looks up a catalog entry, failing with an unsupported-model error.
func (c *ProviderConfig) Model(name string) (ModelConfig, error) {
	if mc, ok := c.Models[name]; ok {
		return mc, nil
	}
	return ModelConfig{}, &Error{
		Code:       ErrUnsupportedModel,
		Message:    fmt.Sprintf("model %s is not supported by %s", name, c.Name),
		HTTPStatus: http.StatusBadRequest,
		Provider:   c.ID,
	}
}
