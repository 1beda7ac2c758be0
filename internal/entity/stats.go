package entity

const (
	OutcomeWin  = "Win"
	OutcomeLoss = "Loss"
	OutcomeDraw = "Draw"
)

// Stats is the per-user aggregate stored under users/{userId}.
type Stats struct {
	Wins   int64 `json:"wins"`
	Losses int64 `json:"losses"`
	Draws  int64 `json:"draws"`
}

func IsValidOutcome(outcome string) bool {
	switch outcome {
	case OutcomeWin, OutcomeLoss, OutcomeDraw:
		return true
	}
	return false
}
