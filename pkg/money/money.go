package money

import "math"

// Round2 rounds an amount to 2 decimal places, half away from zero.
// Every monetary value crossing a computation boundary goes through this.
func Round2(amount float64) float64 {
	return math.Copysign(math.Floor(math.Abs(amount)*100+0.5)/100, amount)
}

// Percent applies an integer percentage to an amount and rounds the result.
func Percent(amount float64, pct int) float64 {
	return Round2(amount * float64(pct) / 100)
}

// SplitStaged divides a net amount into the stage-10 and stage-90 portions.
// The stage-10 portion is rounded; the remainder goes to stage 90 so the two
// always sum back to the net amount exactly.
func SplitStaged(net float64) (stage10, stage90 float64) {
	stage10 = Round2(net * 0.10)
	stage90 = Round2(net - stage10)
	return stage10, stage90
}
