package estimate

// Project returns anchor plus remaining block intervals at secsPerBlock,
// in Unix seconds. remaining is clamped at zero, so a reached target
// projects to the anchor itself regardless of rate.
func Project(remaining, anchor int64, secsPerBlock float64) int64 {
	if remaining <= 0 {
		return anchor
	}
	return anchor + int64(float64(remaining)*secsPerBlock+0.5)
}
