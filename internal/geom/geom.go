// Package geom implements the small numerical kernels spec §4.4 relies
// on: the tetrahedron point-location system solved by Cramer's rule,
// and the axis-aligned bounding box used by the broad phase. These are
// pure math with no third-party dependency — see DESIGN.md for why no
// library from the corpus was a better fit than a direct
// implementation of four 4x4 determinants.
package geom

import "math"

// Vec3 is a point or vector in R^3.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns a - b.
func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

// Add returns a + b.
func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

// Scale returns a scaled by s.
func (a Vec3) Scale(s float64) Vec3 {
	return Vec3{a.X * s, a.Y * s, a.Z * s}
}

// HasNaN reports whether any component is NaN — spec §4.1's "malformed
// (NaN) boxes are fatal" check starts here.
func (a Vec3) HasNaN() bool {
	return math.IsNaN(a.X) || math.IsNaN(a.Y) || math.IsNaN(a.Z)
}

// AABB is an axis-aligned bounding box, spec §3's
// (xmin,ymin,zmin,xmax,ymax,zmax) tuple.
type AABB struct {
	Min, Max Vec3
}

// PointBox returns the degenerate (zero-volume) box around a single point.
func PointBox(p Vec3) AABB {
	return AABB{Min: p, Max: p}
}

// TetBox returns the bounding box of a tetrahedron's four vertices.
func TetBox(v0, v1, v2, v3 Vec3) AABB {
	box := AABB{Min: v0, Max: v0}
	for _, v := range [3]Vec3{v1, v2, v3} {
		box = box.extend(v)
	}
	return box
}

func (b AABB) extend(p Vec3) AABB {
	return AABB{
		Min: Vec3{math.Min(b.Min.X, p.X), math.Min(b.Min.Y, p.Y), math.Min(b.Min.Z, p.Z)},
		Max: Vec3{math.Max(b.Max.X, p.X), math.Max(b.Max.Y, p.Y), math.Max(b.Max.Z, p.Z)},
	}
}

// HasNaN reports whether any bound is NaN.
func (b AABB) HasNaN() bool {
	return b.Min.HasNaN() || b.Max.HasNaN()
}

// Overlaps reports whether two boxes intersect, touching included.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y &&
		b.Min.Z <= o.Max.Z && o.Min.Z <= b.Max.Z
}

// Barycentric is the result of solving the 4x4 shape-function system
// of spec §4.4: weight N_i on vertex i, plus the system determinant
// used for the degeneracy test.
type Barycentric struct {
	N   [4]float64
	Det float64
}

// degenerateEps is compared against |det|, not used as a fuzz margin on
// N_i (spec §4.4: "The > 0 test uses 0, not ε; robustness is obtained
// through the tie-break, not through fuzzy comparison").
const degenerateEps = 1e-20

// SolveBarycentric solves the system in spec §4.4 for the barycentric
// weights of point p with respect to tetrahedron (v0,v1,v2,v3) using
// Cramer's rule on four 4x4 determinants. ok is false when the system
// is degenerate (|det| below a tiny absolute floor, not a tie-break
// margin — just enough to avoid dividing by exact or near-exact zero).
func SolveBarycentric(v0, v1, v2, v3, p Vec3) (bc Barycentric, ok bool) {
	m := [4][4]float64{
		{v0.X, v1.X, v2.X, v3.X},
		{v0.Y, v1.Y, v2.Y, v3.Y},
		{v0.Z, v1.Z, v2.Z, v3.Z},
		{1, 1, 1, 1},
	}
	rhs := [4]float64{p.X, p.Y, p.Z, 1}

	det := det4(m)
	if math.Abs(det) < degenerateEps {
		return Barycentric{Det: det}, false
	}

	var n [4]float64
	for col := 0; col < 4; col++ {
		replaced := m
		for row := 0; row < 4; row++ {
			replaced[row][col] = rhs[row]
		}
		n[col] = det4(replaced) / det
	}

	return Barycentric{N: n, Det: det}, true
}

// Contains reports whether the barycentric weights place the point
// strictly inside the tet: every N_i strictly in (0, 1), per spec
// §4.4's exact tie-break-resolved containment test.
func (bc Barycentric) Contains() bool {
	for _, n := range bc.N {
		if !(n > 0 && 1-n > 0) {
			return false
		}
	}
	return true
}

// Interpolate applies the barycentric weights to four nodal scalar
// values.
func (bc Barycentric) Interpolate(u0, u1, u2, u3 float64) float64 {
	return bc.N[0]*u0 + bc.N[1]*u1 + bc.N[2]*u2 + bc.N[3]*u3
}

// InterpolateVec3 applies the barycentric weights to four nodal
// vector values, component-wise (SPEC_FULL §4's Vector3 FieldKind).
func (bc Barycentric) InterpolateVec3(u0, u1, u2, u3 Vec3) Vec3 {
	return Vec3{
		X: bc.Interpolate(u0.X, u1.X, u2.X, u3.X),
		Y: bc.Interpolate(u0.Y, u1.Y, u2.Y, u3.Y),
		Z: bc.Interpolate(u0.Z, u1.Z, u2.Z, u3.Z),
	}
}

// det4 computes a 4x4 determinant by cofactor expansion along the
// first row. Small enough that an allocation-free, fixed-size
// implementation beats pulling in a matrix library for one operation.
func det4(m [4][4]float64) float64 {
	minor := func(r0, r1, r2 int) float64 {
		return det3(
			m[r0][1], m[r0][2], m[r0][3],
			m[r1][1], m[r1][2], m[r1][3],
			m[r2][1], m[r2][2], m[r2][3],
		)
	}
	return m[0][0]*minor(1, 2, 3) -
		m[1][0]*minor(0, 2, 3) +
		m[2][0]*minor(0, 1, 3) -
		m[3][0]*minor(0, 1, 2)
}

func det3(a, b, c, d, e, f, g, h, i float64) float64 {
	return a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
}

// Jacobian returns the Jacobian determinant of the linear map from the
// reference tet to (v0,v1,v2,v3). Spec §3's Tet invariant ("positive
// Jacobian, right-handed ordering") is checked against this.
func Jacobian(v0, v1, v2, v3 Vec3) float64 {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	e3 := v3.Sub(v0)
	return e1.X*(e2.Y*e3.Z-e2.Z*e3.Y) -
		e1.Y*(e2.X*e3.Z-e2.Z*e3.X) +
		e1.Z*(e2.X*e3.Y-e2.Y*e3.X)
}
