package renderer

import (
	"sort"

	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Leaf threshold: if we have this many or fewer triangles, store them in a leaf node
const leafThreshold = 8

// bvhNode is a node of the bounding volume hierarchy. Leaves reference a
// contiguous range of the tree's triangle slice.
type bvhNode struct {
	bbox        core.AABB
	left, right *bvhNode
	start, end  int
}

// bvh accelerates closest-hit queries over a fixed set of triangles
type bvh struct {
	root      *bvhNode
	triangles []triangle
}

// newBVH builds a hierarchy by median split along the longest axis.
// The triangle slice is reordered in place and owned by the tree.
func newBVH(triangles []triangle) *bvh {
	tree := &bvh{triangles: triangles}
	if len(triangles) > 0 {
		tree.root = tree.build(0, len(triangles))
	}
	return tree
}

func (b *bvh) build(start, end int) *bvhNode {
	box := core.EmptyAABB()
	for i := start; i < end; i++ {
		box = box.Union(b.triangles[i].bbox)
	}

	if end-start <= leafThreshold {
		return &bvhNode{bbox: box, start: start, end: end}
	}

	axis := box.LongestAxis()
	span := b.triangles[start:end]
	sort.Slice(span, func(i, j int) bool {
		return span[i].bbox.Center()[axis] < span[j].bbox.Center()[axis]
	})

	mid := start + (end-start)/2
	return &bvhNode{
		bbox:  box,
		left:  b.build(start, mid),
		right: b.build(mid, end),
	}
}

// bounds returns the box of every triangle in the tree
func (b *bvh) bounds() core.AABB {
	if b.root == nil {
		return core.EmptyAABB()
	}
	return b.root.bbox
}

// hit finds the closest intersection in [tMin, tMax]
func (b *bvh) hit(origin, dir mgl32.Vec3, tMin, tMax float32) (hitRecord, bool) {
	var rec hitRecord
	if b.root == nil {
		return rec, false
	}
	invDir := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}
	found := b.hitNode(b.root, origin, dir, invDir, tMin, tMax, &rec)
	return rec, found
}

func (b *bvh) hitNode(node *bvhNode, origin, dir, invDir mgl32.Vec3, tMin, tMax float32, rec *hitRecord) bool {
	if !node.bbox.Hit(origin, invDir, tMin, tMax) {
		return false
	}

	if node.left == nil {
		hitAnything := false
		closest := tMax
		for i := node.start; i < node.end; i++ {
			if b.triangles[i].hit(origin, dir, tMin, closest, rec) {
				hitAnything = true
				closest = rec.t
			}
		}
		return hitAnything
	}

	hitLeft := b.hitNode(node.left, origin, dir, invDir, tMin, tMax, rec)
	closest := tMax
	if hitLeft {
		closest = rec.t
	}
	hitRight := b.hitNode(node.right, origin, dir, invDir, tMin, closest, rec)
	return hitLeft || hitRight
}
