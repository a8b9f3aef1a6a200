package model

import "fmt"

// ChoiceKind is the closed set of question layouts. It drives the display
// alphabet and whether a question has a model attribution phase.
type ChoiceKind int

const (
	TwoChoice  ChoiceKind = 2
	FourChoice ChoiceKind = 4
)

var (
	twoChoiceLetters  = []string{"A", "B"}
	fourChoiceLetters = []string{"A", "B", "C", "D"}
)

func ParseChoiceKind(n int) (ChoiceKind, error) {
	switch ChoiceKind(n) {
	case TwoChoice, FourChoice:
		return ChoiceKind(n), nil
	}
	return 0, fmt.Errorf("choice count must be 2 or 4, got %d", n)
}

// Letters returns a fresh copy of the display letters for this layout.
func (k ChoiceKind) Letters() []string {
	src := twoChoiceLetters
	if k == FourChoice {
		src = fourChoiceLetters
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func (k ChoiceKind) OptionCount() int { return int(k) }

func (k ChoiceKind) AIOptionCount() int { return int(k) - 1 }

// HasPhase2 reports whether AI options must be attributed to model groups.
func (k ChoiceKind) HasPhase2() bool { return k == FourChoice }
