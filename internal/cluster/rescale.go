package cluster

// Rescale maps coordinates into the square [-limit, limit], preserving the
// aspect ratio. A collapsed axis stays at 0.
func Rescale(coords [][2]float64, limit float64) {
	if len(coords) == 0 {
		return
	}

	minX, maxX := coords[0][0], coords[0][0]
	minY, maxY := coords[0][1], coords[0][1]
	for _, c := range coords[1:] {
		if c[0] < minX {
			minX = c[0]
		}
		if c[0] > maxX {
			maxX = c[0]
		}
		if c[1] < minY {
			minY = c[1]
		}
		if c[1] > maxY {
			maxY = c[1]
		}
	}

	span := maxX - minX
	if maxY-minY > span {
		span = maxY - minY
	}
	if span == 0 {
		for i := range coords {
			coords[i] = [2]float64{0, 0}
		}
		return
	}

	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	scale := 2 * limit / span

	for i := range coords {
		coords[i][0] = (coords[i][0] - cx) * scale
		coords[i][1] = (coords[i][1] - cy) * scale
	}
}
