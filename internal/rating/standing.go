package rating

// Standing is the rating-adjacent part of an agent record.
type Standing struct {
	Rating      int
	Wins        int
	Losses      int
	Draws       int
	GamesPlayed int
}

// Apply folds one finished game into the standing.
func (s Standing) Apply(delta int, result Result) Standing {
	s.Rating += delta
	s.GamesPlayed++
	switch result {
	case Win:
		s.Wins++
	case Loss:
		s.Losses++
	default:
		s.Draws++
	}
	return s
}
