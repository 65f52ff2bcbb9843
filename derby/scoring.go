package derby

import (
	"sort"

	"github.com/padraicbc/derby/models"
)

// Placing is one horse's performance in a finished race.
type Placing struct {
	Entry    models.RaceEntry
	StatSum  float64
	Luck     float64
	Score    float64
	Position int
	Mmr      int
}

// EffectiveStats returns base stats plus every equipped modifier. Each stat
// is floored at zero.
func EffectiveStats(s HorseStats) (power, sprint, speed int) {
	power, sprint, speed = s.Power, s.Sprint, s.Speed
	for _, m := range s.Modifiers {
		power += m.Power
		sprint += m.Sprint
		speed += m.Speed
	}
	return max(power, 0), max(sprint, 0), max(speed, 0)
}

// RankField scores every entry and assigns positions 1..n.
//
// score = statSum + luck, luck ~ U(0, statSum). Equal scores fall back to the
// higher stat sum, then to the earlier entry.
func RankField(entries []models.RaceEntry, stats map[int64]HorseStats, rng Rand) []Placing {
	out := make([]Placing, 0, len(entries))
	for _, e := range entries {
		st := stats[e.HorseID]
		p, sp, sd := EffectiveStats(st)
		sum := float64(p + sp + sd)
		luck := rng.Float64() * sum
		out = append(out, Placing{
			Entry:   e,
			StatSum: sum,
			Luck:    luck,
			Score:   sum + luck,
			Mmr:     st.Mmr,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.StatSum != b.StatSum {
			return a.StatSum > b.StatSum
		}
		return a.Entry.EntryID < b.Entry.EntryID
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}
