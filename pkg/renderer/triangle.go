package renderer

import (
	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

// triangle is a world-space triangle with per-vertex attributes
type triangle struct {
	v0, edge1, edge2 mgl32.Vec3
	normal           mgl32.Vec3 // geometric normal
	n                [3]mgl32.Vec3
	uv               [3]mgl32.Vec2
	color            [3]mgl32.Vec4
	hasNormals       bool
	material         *MaterialInstance
	bbox             core.AABB
}

// hitRecord describes the closest intersection along a ray
type hitRecord struct {
	t    float32
	u, v float32 // barycentric weights of v1 and v2
	tri  *triangle
}

func newTriangle(p0, p1, p2 mgl32.Vec3, material *MaterialInstance) triangle {
	tri := triangle{
		v0:       p0,
		edge1:    p1.Sub(p0),
		edge2:    p2.Sub(p0),
		material: material,
		bbox:     core.NewAABBFromPoints(p0, p1, p2),
		color:    [3]mgl32.Vec4{{1, 1, 1, 1}, {1, 1, 1, 1}, {1, 1, 1, 1}},
	}
	tri.normal = tri.edge1.Cross(tri.edge2).Normalize()
	return tri
}

// hit tests the triangle using the Möller-Trumbore algorithm
func (tri *triangle) hit(origin, dir mgl32.Vec3, tMin, tMax float32, rec *hitRecord) bool {
	const epsilon = 1e-12

	h := dir.Cross(tri.edge2)
	a := tri.edge1.Dot(h)
	// Ray lies in the plane of the triangle
	if a > -epsilon && a < epsilon {
		return false
	}

	f := 1 / a
	s := origin.Sub(tri.v0)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return false
	}

	q := s.Cross(tri.edge1)
	v := f * dir.Dot(q)
	if v < 0 || u+v > 1 {
		return false
	}

	t := f * tri.edge2.Dot(q)
	if t < tMin || t > tMax {
		return false
	}

	rec.t, rec.u, rec.v, rec.tri = t, u, v, tri
	return true
}

// shadingNormal interpolates vertex normals, falling back to the face normal
func (tri *triangle) shadingNormal(u, v float32) mgl32.Vec3 {
	if !tri.hasNormals {
		return tri.normal
	}
	w := 1 - u - v
	n := tri.n[0].Mul(w).Add(tri.n[1].Mul(u)).Add(tri.n[2].Mul(v))
	if n.Len() == 0 {
		return tri.normal
	}
	return n.Normalize()
}

func (tri *triangle) texCoord(u, v float32) mgl32.Vec2 {
	w := 1 - u - v
	return tri.uv[0].Mul(w).Add(tri.uv[1].Mul(u)).Add(tri.uv[2].Mul(v))
}

func (tri *triangle) vertexColor(u, v float32) mgl32.Vec4 {
	w := 1 - u - v
	return tri.color[0].Mul(w).Add(tri.color[1].Mul(u)).Add(tri.color[2].Mul(v))
}
