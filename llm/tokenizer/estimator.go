package tokenizer

import "unicode/utf8"

// Estimator approximates BPE token counts without encoding data: roughly one
// token per four bytes of ASCII and one per CJK rune, never less than one for
// non-empty text. Token ids are synthetic.
type Estimator struct{}

func NewEstimator() *Estimator { return &Estimator{} }

func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	bytes := 0
	wide := 0
	for _, r := range text {
		if utf8.RuneLen(r) >= 3 {
			wide++
		} else {
			bytes += utf8.RuneLen(r)
		}
	}
	n := bytes/4 + wide
	if n == 0 {
		n = 1
	}
	return n
}

func (e *Estimator) Encode(text string) []int {
	ids := make([]int, e.Count(text))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (e *Estimator) Name() string { return "estimator" }
