package filter

// Test helper functions shared across filter tests.

// uniformBuffer creates a working buffer filled with one RGBA value.
func uniformBuffer(w, h int, r, g, b, a float32) []float32 {
	buf := make([]float32, w*h*Channels)
	for i := 0; i < w*h; i++ {
		buf[i*4+0] = r
		buf[i*4+1] = g
		buf[i*4+2] = b
		buf[i*4+3] = a
	}
	return buf
}

// absf32 returns the absolute value of a float32.
func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// sumf32 returns the float64 sum of a float32 slice.
func sumf32(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x)
	}
	return s
}
