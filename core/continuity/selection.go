package continuity

import (
	"fmt"
	"sort"

	"github.com/kilianp07/rbtsched/core/model"
)

// PrimaryBonus is added to the ranking score of the team's primary RBT. It
// never alters the reported continuity score.
const PrimaryBonus = 50.0

// Candidate is one ranked provider in a selection.
type Candidate struct {
	RBTID        string                `json:"rbt_id"`
	Continuity   model.ContinuityScore `json:"continuity"`
	RankingScore float64               `json:"ranking_score"`
	IsPrimary    bool                  `json:"is_primary"`
	Reason       string                `json:"reason"`
}

// Selection is the outcome of SelectOptimalProvider.
type Selection struct {
	Selected     string                `json:"selected"`
	Score        model.ContinuityScore `json:"score"`
	Reason       string                `json:"reason"`
	Alternatives []Candidate           `json:"alternatives"`
}

// SelectOptimalProvider picks the provider with the strongest continuity for
// the client, strongly preferring the team primary.
func (s *Scorer) SelectOptimalProvider(candidateIDs []string, clientID string, history []model.Session, team *model.Team) Selection {
	switch len(candidateIDs) {
	case 0:
		return Selection{Reason: "no available provider"}
	case 1:
		id := candidateIDs[0]
		return Selection{
			Selected: id,
			Score:    s.Score(id, clientID, history),
			Reason:   "only available provider",
		}
	}

	ranked := make([]Candidate, 0, len(candidateIDs))
	seen := make(map[string]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		c := Candidate{RBTID: id, Continuity: s.Score(id, clientID, history), IsPrimary: team.IsPrimary(id)}
		c.RankingScore = c.Continuity.Score
		if c.IsPrimary {
			c.RankingScore += PrimaryBonus
		}
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RankingScore != ranked[j].RankingScore {
			return ranked[i].RankingScore > ranked[j].RankingScore
		}
		return ranked[i].RBTID < ranked[j].RBTID
	})

	top := ranked[0]
	sel := Selection{Selected: top.RBTID, Score: top.Continuity, Reason: selectedReason(top)}
	for _, c := range ranked[1:] {
		c.Reason = alternativeReason(c)
		sel.Alternatives = append(sel.Alternatives, c)
	}
	return sel
}

func selectedReason(c Candidate) string {
	if c.IsPrimary {
		return fmt.Sprintf("primary provider with continuity score %.1f", c.Continuity.Score)
	}
	if c.Continuity.TotalSessions > 0 {
		return fmt.Sprintf("highest continuity score %.1f from %d completed sessions", c.Continuity.Score, c.Continuity.TotalSessions)
	}
	return "no prior sessions with any candidate, first available provider"
}

func alternativeReason(c Candidate) string {
	switch {
	case c.IsPrimary:
		return "primary provider for client"
	case c.Continuity.TotalSessions > 0:
		return fmt.Sprintf("%d completed sessions, %d in the last 30 days", c.Continuity.TotalSessions, c.Continuity.RecentSessions)
	default:
		return "lower continuity score than selected provider"
	}
}
