package judge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Returned (wrapped) when a judge's output is not exactly a well-formed verdict payload. A malformed payload is a failed attempt, never a verdict.
var ErrMalformedVerdict = errors.New("malformed verdict")

type Category string

const (
	CategorySpam      Category = "spam"
	CategoryMaybeSpam Category = "maybe-spam"
	CategoryNotSpam   Category = "not-spam"
)

// Closed set of results a judge may return.
type CategorySet []Category

var (
	BinaryCategories  = CategorySet{CategorySpam, CategoryNotSpam}
	TernaryCategories = CategorySet{CategorySpam, CategoryMaybeSpam, CategoryNotSpam}
)

func ParseCategorySet(name string) (CategorySet, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "binary":
		return BinaryCategories, nil
	case "ternary":
		return TernaryCategories, nil
	default:
		return nil, fmt.Errorf("unknown category set: %q (expected binary or ternary)", name)
	}
}

func (cs CategorySet) Contains(c Category) bool {
	for _, v := range cs {
		if v == c {
			return true
		}
	}
	return false
}

func (cs CategorySet) String() string {
	vals := make([]string, len(cs))
	for i, c := range cs {
		vals[i] = string(c)
	}
	return strings.Join(vals, ", ")
}

// A judge's structured output.
type Verdict struct {
	Reasoning string   `json:"reasoning"`
	Result    Category `json:"result"`
}

func (v *Verdict) IsSpam() bool {
	return v.Result == CategorySpam
}

type verdictPayload struct {
	Reasoning *string `json:"reasoning"`
	Result    *string `json:"result"`
}

// Strictly parses a verdict payload: a single JSON object with exactly the "reasoning" and "result" fields, and nothing else. Surrounding whitespace is tolerated; prose, code fences, extra keys, or trailing data are not.
//
// The result must be one of the allowed categories. All failures wrap ErrMalformedVerdict.
func ParseVerdict(raw string, allowed CategorySet) (*Verdict, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(raw))))
	dec.DisallowUnknownFields()

	var p verdictPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after payload", ErrMalformedVerdict)
	}
	if p.Reasoning == nil {
		return nil, fmt.Errorf("%w: missing reasoning", ErrMalformedVerdict)
	}
	if p.Result == nil {
		return nil, fmt.Errorf("%w: missing result", ErrMalformedVerdict)
	}
	result := Category(*p.Result)
	if !allowed.Contains(result) {
		return nil, fmt.Errorf("%w: result %q not one of [%s]", ErrMalformedVerdict, *p.Result, allowed)
	}
	return &Verdict{
		Reasoning: *p.Reasoning,
		Result:    result,
	}, nil
}
