package posecal

import "fmt"

// CandidateSelector picks one decomposition candidate. It is only called
// with a non-empty slice.
type CandidateSelector func([]Candidate) Candidate

// SelectFirst returns the first candidate. It applies no disambiguation.
func SelectFirst(c []Candidate) Candidate { return c[0] }

// SelectFacingNormal returns the candidate whose plane normal has the
// largest component along the optical axis (+Z), the candidate most
// consistent with a scene plane in front of the camera and facing it.
// Ties keep the earlier candidate.
func SelectFacingNormal(c []Candidate) Candidate {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].N.Z > c[best].N.Z {
			best = i
		}
	}
	return c[best]
}

// Selector names accepted by SelectorByName.
const (
	SelectorFirst        = "first"
	SelectorFacingNormal = "facing-normal"
)

// SelectorByName maps a configuration name to a selector. Empty selects SelectFirst.
func SelectorByName(name string) (CandidateSelector, error) {
	switch name {
	case "", SelectorFirst:
		return SelectFirst, nil
	case SelectorFacingNormal:
		return SelectFacingNormal, nil
	}
	return nil, fmt.Errorf("unknown candidate selector %q (want %s or %s)", name, SelectorFirst, SelectorFacingNormal)
}
