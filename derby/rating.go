package derby

import "math"

// RatingInput is a finished horse's rating and position.
type RatingInput struct {
	HorseID   int64
	MmrBefore int
	Position  int
}

// RatingChange is the outcome of a rating update for one horse.
type RatingChange struct {
	HorseID   int64
	MmrBefore int
	MmrAfter  int
	Delta     int
}

// UpdateRatings applies a multi-player Elo update over a finished field.
//
// K = 3n. A horse's actual score runs linearly from 1 (first) to 0 (last);
// its expected score is the mean pairwise Elo expectation against every other
// horse. Ratings never go below zero. The field is not forced to be
// zero-sum.
func UpdateRatings(field []RatingInput) []RatingChange {
	n := len(field)
	out := make([]RatingChange, n)
	if n <= 1 {
		for i, f := range field {
			out[i] = RatingChange{HorseID: f.HorseID, MmrBefore: f.MmrBefore, MmrAfter: f.MmrBefore}
		}
		return out
	}

	k := 3 * float64(n)
	for i, f := range field {
		actual := float64(n-f.Position) / float64(n-1)
		delta := int(math.Round(k * (actual - expectedScore(field, i))))
		after := max(f.MmrBefore+delta, 0)
		out[i] = RatingChange{
			HorseID:   f.HorseID,
			MmrBefore: f.MmrBefore,
			MmrAfter:  after,
			Delta:     after - f.MmrBefore,
		}
	}
	return out
}

func expectedScore(field []RatingInput, i int) float64 {
	var sum float64
	for j, o := range field {
		if j == i {
			continue
		}
		sum += 1 / (1 + math.Pow(10, float64(o.MmrBefore-field[i].MmrBefore)/400))
	}
	return sum / float64(len(field)-1)
}
