package mask

import (
	"math"
	"sort"
)

// FromPolygons rasterises COCO polygons ([x0, y0, x1, y1, ...]) into a width x height mask.
// Polygons are unioned; each one is filled with the even-odd rule. Degenerate polygons are ignored.
func FromPolygons(polygons [][]float64, width, height int) *Bitmap {
	b := New(width, height)
	for _, poly := range polygons {
		b.fillPolygon(poly)
	}
	return b
}

func (b *Bitmap) fillPolygon(poly []float64) {
	n := len(poly) / 2
	if n < 3 {
		return
	}
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		minY = math.Min(minY, poly[2*i+1])
		maxY = math.Max(maxY, poly[2*i+1])
	}
	y0 := int(math.Max(0, math.Floor(minY-0.5)))
	y1 := int(math.Min(float64(b.Height-1), math.Ceil(maxY)))

	xs := make([]float64, 0, 8)
	for y := y0; y <= y1; y++ {
		yc := float64(y) + 0.5
		xs = xs[:0]
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			xi, yi := poly[2*i], poly[2*i+1]
			xj, yj := poly[2*j], poly[2*j+1]
			if (yi <= yc) == (yj <= yc) {
				continue
			}
			xs = append(xs, xi+(yc-yi)*(xj-xi)/(yj-yi))
		}
		sort.Float64s(xs)
		for k := 0; k+1 < len(xs); k += 2 {
			// pixel centres x+0.5 in [xs[k], xs[k+1])
			from := int(math.Max(0, math.Ceil(xs[k]-0.5)))
			to := int(math.Min(float64(b.Width), math.Ceil(xs[k+1]-0.5)))
			for x := from; x < to; x++ {
				b.Pix[y*b.Width+x] = true
			}
		}
	}
}

// Polygons traces the outline of every 4-connected region of the mask. Vertices lie on pixel
// corners and collinear vertices are dropped. An empty mask gives an empty, non-nil list.
// Outlines of holes are included, so a mask with holes does not survive FromPolygons; use
// ToSegmentation to get a lossless encoding.
func (b *Bitmap) Polygons() [][]float64 {
	polygons, _ := b.contours()
	return polygons
}

type edge struct {
	from   int
	dx, dy int
}

// contours returns every outline and reports whether any of them bounds a hole.
func (b *Bitmap) contours() ([][]float64, bool) {
	stride := b.Width + 1
	vertex := func(x, y int) int { return y*stride + x }

	var edges []edge
	out := make(map[int][]int)
	add := func(x, y, dx, dy int) {
		v := vertex(x, y)
		out[v] = append(out[v], len(edges))
		edges = append(edges, edge{from: v, dx: dx, dy: dy})
	}
	// edges run with the mask on their left-hand side (y axis pointing down)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if !b.Pix[y*b.Width+x] {
				continue
			}
			if !b.At(x, y-1) {
				add(x+1, y, -1, 0)
			}
			if !b.At(x, y+1) {
				add(x, y+1, 1, 0)
			}
			if !b.At(x-1, y) {
				add(x, y, 0, 1)
			}
			if !b.At(x+1, y) {
				add(x+1, y+1, 0, -1)
			}
		}
	}

	used := make([]bool, len(edges))
	polygons := [][]float64{}
	holes := false
	for start := range edges {
		if used[start] {
			continue
		}
		var loop []edge
		cur := start
		for {
			used[cur] = true
			loop = append(loop, edges[cur])
			e := edges[cur]
			next := pickNext(edges, out[e.from+e.dx+e.dy*stride], e)
			if next == start {
				break
			}
			cur = next
		}

		poly, area := simplify(loop, stride)
		if area > 0 {
			holes = true
		}
		polygons = append(polygons, poly)
	}
	return polygons, holes
}

// pickNext chooses the outgoing edge at a vertex, preferring a left turn, then straight, then a
// right turn. At a vertex shared by two diagonal pixels this keeps the pixels in separate outlines.
func pickNext(edges []edge, candidates []int, in edge) int {
	best, bestRank := -1, 4
	for _, c := range candidates {
		e := edges[c]
		rank := 3
		switch {
		case e.dx == in.dy && e.dy == -in.dx:
			rank = 0
		case e.dx == in.dx && e.dy == in.dy:
			rank = 1
		case e.dx == -in.dy && e.dy == in.dx:
			rank = 2
		}
		if rank < bestRank {
			best, bestRank = c, rank
		}
	}
	return best
}

// simplify drops collinear vertices and returns the flat polygon with its signed (shoelace) area.
// Outer outlines have a negative area, hole outlines a positive one.
func simplify(loop []edge, stride int) ([]float64, float64) {
	n := len(loop)
	poly := make([]float64, 0, 2*n)
	var area float64
	for i := 0; i < n; i++ {
		prev := loop[(i+n-1)%n]
		e := loop[i]
		x, y := e.from%stride, e.from/stride
		nx, ny := x+e.dx, y+e.dy
		area += float64(x*ny - nx*y)
		if prev.dx == e.dx && prev.dy == e.dy {
			continue
		}
		poly = append(poly, float64(x), float64(y))
	}
	return poly, area / 2
}
