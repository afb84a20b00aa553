package vector

// SquaredL2 returns the sum of squared per-component differences. Both vectors must have
// the same length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
