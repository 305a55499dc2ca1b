package mistie

// tieKey identifies a crossing independent of which line is A.
type tieKey struct {
	lineLo, lineHi string
	trcLo, trcHi   int
}

func keyOf(t Tie) tieKey {
	if t.LineA <= t.LineB {
		return tieKey{t.LineA, t.LineB, t.TrcA, t.TrcB}
	}
	return tieKey{t.LineB, t.LineA, t.TrcB, t.TrcA}
}

// Merge adds the ties of other to s. A tie of other that describes the same
// crossing as an existing tie (same line pair and trace numbers, either
// orientation) replaces it when replace is set and is dropped otherwise.
// It returns the number of ties added and replaced.
func (s *Set) Merge(other *Set, replace bool) (added, replaced int) {
	index := make(map[tieKey]int, len(s.ties))
	for i, t := range s.ties {
		index[keyOf(t)] = i
	}

	for _, t := range other.ties {
		k := keyOf(t)
		if i, ok := index[k]; ok {
			if replace {
				s.ties[i] = t
				replaced++
			}
			continue
		}
		index[k] = len(s.ties)
		s.ties = append(s.ties, t)
		added++
	}
	return added, replaced
}
