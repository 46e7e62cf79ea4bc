package providers

// ComparePostIds orders two external post ids chronologically. Ids are
// decimal snowflakes, so a longer id is always newer and equal-length ids
// order lexicographically. Returns -1, 0 or 1.
func ComparePostIds(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
