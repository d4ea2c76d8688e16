// Package coord defines the vector, inertial state, geodetic and topocentric
// records exchanged between the propagator and ground-site code.
package coord

import "math"

// Vector is a Cartesian 3-vector.
type Vector struct {
	X, Y, Z float64
}

// Magnitude returns the Euclidean norm.
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - u.
func (v Vector) Sub(u Vector) Vector {
	return Vector{X: v.X - u.X, Y: v.Y - u.Y, Z: v.Z - u.Z}
}

// Add returns v + u.
func (v Vector) Add(u Vector) Vector {
	return Vector{X: v.X + u.X, Y: v.Y + u.Y, Z: v.Z + u.Z}
}

// Scale returns v multiplied by k.
func (v Vector) Scale(k float64) Vector {
	return Vector{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the scalar product.
func (v Vector) Dot(u Vector) float64 {
	return v.X*u.X + v.Y*u.Y + v.Z*u.Z
}

// Array returns the components as [x, y, z].
func (v Vector) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
