package contour

import (
	"github.com/MeKo-Tech/cardrectify/internal/geometry"
	"github.com/MeKo-Tech/cardrectify/internal/mempool"
)

// blob describes a 4-connected component and its extreme pixels under the
// s = x + y and d = y - x rule used for corner ordering.
type blob struct {
	count                  int
	minS, maxS, minD, maxD int
	tl, br, tr, bl         [2]int
}

func newBlob(x, y int) blob {
	p := [2]int{x, y}
	return blob{minS: x + y, maxS: x + y, minD: y - x, maxD: y - x, tl: p, br: p, tr: p, bl: p}
}

func (b *blob) add(x, y int) {
	b.count++
	s, d := x+y, y-x
	p := [2]int{x, y}
	if s < b.minS {
		b.minS, b.tl = s, p
	}
	if s > b.maxS {
		b.maxS, b.br = s, p
	}
	if d < b.minD {
		b.minD, b.tr = d, p
	}
	if d > b.maxD {
		b.maxD, b.bl = d, p
	}
}

func (b blob) quad() geometry.Quad {
	pt := func(p [2]int) geometry.Point { return geometry.Pt(float64(p[0]), float64(p[1])) }
	return geometry.Quad{pt(b.tl), pt(b.tr), pt(b.br), pt(b.bl)}
}

// largestComponent labels the 4-connected components of mask and returns the
// biggest one.
func largestComponent(mask []bool, w, h int) (blob, bool) {
	n := w * h
	visited := mempool.GetBool(n)
	defer mempool.PutBool(visited)
	queue := mempool.GetInt32(n)
	defer mempool.PutInt32(queue)

	var best blob
	found := false
	for start := range n {
		if !mask[start] || visited[start] {
			continue
		}
		b := bfs(mask, visited, queue, w, h, start)
		if !found || b.count > best.count {
			best, found = b, true
		}
	}
	return best, found
}

// bfs floods one component. Each pixel is enqueued at most once, so a queue
// of w*h entries never overflows.
func bfs(mask, visited []bool, queue []int32, w, h, start int) blob {
	head, tail := 0, 0
	queue[tail] = int32(start)
	tail++
	visited[start] = true
	b := newBlob(start%w, start/w)

	for head < tail {
		i := int(queue[head])
		head++
		x, y := i%w, i/w
		b.add(x, y)

		if x > 0 && mask[i-1] && !visited[i-1] {
			visited[i-1] = true
			queue[tail] = int32(i - 1)
			tail++
		}
		if x < w-1 && mask[i+1] && !visited[i+1] {
			visited[i+1] = true
			queue[tail] = int32(i + 1)
			tail++
		}
		if y > 0 && mask[i-w] && !visited[i-w] {
			visited[i-w] = true
			queue[tail] = int32(i - w)
			tail++
		}
		if y < h-1 && mask[i+w] && !visited[i+w] {
			visited[i+w] = true
			queue[tail] = int32(i + w)
			tail++
		}
	}
	return b
}
