package supervisor

// mean returns the arithmetic mean of samples and false when samples is empty.
func mean(samples []uint16) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	var sum uint64
	for _, v := range samples {
		sum += uint64(v)
	}

	return float64(sum) / float64(len(samples)), true
}
