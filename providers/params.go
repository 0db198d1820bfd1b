package providers

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/llmgate/llmgate/llm"
)

// Range bounds one numeric tuning knob. Integer knobs reject fractional
// values.
type Range struct {
	Min     float64
	Max     float64
	Integer bool
}

// Unbounded marks a range end with no limit.
var Unbounded = math.Inf(1)

// ParamSpec enumerates the parameter names a provider recognizes. Unknown
// names are rejected so typos do not silently pass through to the upstream.
type ParamSpec map[string]Range

// Validate checks every supplied parameter against the spec.
func (s ParamSpec) Validate(params llm.Parameters, provider string) error {
	for name := range params {
		r, ok := s[name]
		if !ok {
			return &llm.Error{
				Code:       llm.ErrValidation,
				Message:    fmt.Sprintf("unknown parameter %q for provider %s (known: %s)", name, provider, s.names()),
				HTTPStatus: http.StatusUnprocessableEntity,
				Provider:   provider,
			}
		}

		v, ok := params.Float(name)
		if !ok {
			return &llm.Error{
				Code:       llm.ErrValidation,
				Message:    fmt.Sprintf("parameter %q must be a number", name),
				HTTPStatus: http.StatusUnprocessableEntity,
				Provider:   provider,
			}
		}
		if r.Integer && v != math.Trunc(v) {
			return &llm.Error{
				Code:       llm.ErrValidation,
				Message:    fmt.Sprintf("parameter %q must be an integer", name),
				HTTPStatus: http.StatusUnprocessableEntity,
				Provider:   provider,
			}
		}
		if v < r.Min || v > r.Max {
			return &llm.Error{
				Code:       llm.ErrValidation,
				Message:    fmt.Sprintf("parameter %q out of range [%s, %s]: %v", name, formatBound(r.Min), formatBound(r.Max), v),
				HTTPStatus: http.StatusUnprocessableEntity,
				Provider:   provider,
			}
		}
	}
	return nil
}

func (s ParamSpec) names() string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func formatBound(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
