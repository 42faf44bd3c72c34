package evolution

// EditDistance estimates how much a reviewer changed a draft: the length
// difference plus the number of differing runes at aligned positions. It
// is not a true edit distance; an insertion near the start shifts every
// later rune and counts them all. Either text being empty yields 0.
func EditDistance(original, edited string) int {
	if original == "" || edited == "" {
		return 0
	}

	a, b := []rune(original), []rune(edited)
	distance := len(b) - len(a)
	if distance < 0 {
		distance = -distance
	}
	for i := 0; i < min(len(a), len(b)); i++ {
		if a[i] != b[i] {
			distance++
		}
	}
	return distance
}
