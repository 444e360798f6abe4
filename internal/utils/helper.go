package utils

func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// CountShared returns how many items of b also appear in a.
func CountShared(a, b []string) int {
	n := 0
	for _, item := range b {
		if Contains(a, item) {
			n++
		}
	}
	return n
}
