// Package coords provides affine transforms between the top-left page
// coordinates used by the composition API and PDF user space.
package coords

import (
	"errors"
	"math"
)

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

type Point struct{ X, Y float64 }

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// FlipY maps top-left coordinates on a page of the given height to PDF
// user space with its origin at the bottom-left corner.
func FlipY(pageHeight float64) Matrix { return Matrix{1, 0, 0, -1, 0, pageHeight} }

// Multiply returns m followed by o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// kappa is the control point distance for a quarter circle of radius 1.
const kappa = 0.5522847498307936

// Segment is a cubic Bézier segment ending at To.
type Segment struct {
	C1, C2, To Point
}

// Ellipse approximates the ellipse inscribed in the rectangle
// (x, y, w, h) by four cubic Bézier segments. It returns the start point and
// the segments in drawing order.
func Ellipse(x, y, w, h float64) (Point, []Segment) {
	rx, ry := w/2, h/2
	cx, cy := x+rx, y+ry
	kx, ky := rx*kappa, ry*kappa
	start := Point{cx + rx, cy}
	return start, []Segment{
		{Point{cx + rx, cy + ky}, Point{cx + kx, cy + ry}, Point{cx, cy + ry}},
		{Point{cx - kx, cy + ry}, Point{cx - rx, cy + ky}, Point{cx - rx, cy}},
		{Point{cx - rx, cy - ky}, Point{cx - kx, cy - ry}, Point{cx, cy - ry}},
		{Point{cx + kx, cy - ry}, Point{cx + rx, cy - ky}, Point{cx + rx, cy}},
	}
}
