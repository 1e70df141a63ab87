package csa

// Delays the arrival of each label by penalty seconds per boarding.
// With ignoreFirstBoarding, only boardings after the first (i.e.
// transfers) are penalized.
func AddTransferPenalties[L Label[L]](labels []L, penalty float64, ignoreFirstBoarding bool) []L {
	penalized := make([]L, 0, len(labels))
	for _, l := range labels {
		n := l.Boardings()
		if ignoreFirstBoarding {
			n = max(0, n-1)
		}
		penalized = append(penalized, l.WithArrival(l.Arrival()+float64(n)*penalty))
	}
	return penalized
}

func FastestPathAnalyzerAfterTransferPenalties[L Label[L]](
	labels []L,
	start float64,
	end float64,
	penalty float64,
	ignoreFirstBoarding bool,
	options ...FastestPathOption,
) (*FastestPathAnalyzer[L], error) {
	return NewFastestPathAnalyzer(AddTransferPenalties(labels, penalty, ignoreFirstBoarding), start, end, options...)
}
