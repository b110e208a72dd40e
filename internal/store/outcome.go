package store

// Outcome classifies a score pair
type Outcome string

const (
	OutcomeUndefined Outcome = ""
	OutcomeHomeWin   Outcome = "HOME_WIN"
	OutcomeAwayWin   Outcome = "AWAY_WIN"
	OutcomeDraw      Outcome = "DRAW"
)

// OutcomeOf compares two scores. Either side missing yields OutcomeUndefined.
func OutcomeOf(home, away *int) Outcome {
	if home == nil || away == nil {
		return OutcomeUndefined
	}
	switch {
	case *home > *away:
		return OutcomeHomeWin
	case *home < *away:
		return OutcomeAwayWin
	default:
		return OutcomeDraw
	}
}
