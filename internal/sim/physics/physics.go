// Package physics defines the step contract the simulation clock drives.
// The world only depends on Stepper; integration details stay behind it.
package physics

import (
	"fmt"
	"math"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }

func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// Body is the mutable physical state of one simulated object.
type Body struct {
	ID   string
	Pos  Vec3
	Vel  Vec3
	Mass float64
}

// Stepper advances every body by dt seconds in place. A returned error
// means the step produced no usable state; callers keep the previous one.
type Stepper interface {
	Step(bodies []*Body, dt float64) error
}

// Gravity is a semi-implicit Euler integrator under constant vertical
// acceleration. Velocity first, then position, so a body dropped from
// rest moves on the very first step.
type Gravity struct {
	G      float64 // acceleration on Y, negative for downward
	Ground float64 // bodies never fall below this plane
}

func NewGravity(g float64) *Gravity {
	if g == 0 {
		g = -9.81
	}
	return &Gravity{G: g}
}

func (e *Gravity) Step(bodies []*Body, dt float64) error {
	if dt <= 0 {
		return fmt.Errorf("physics: non-positive dt %v", dt)
	}
	for _, b := range bodies {
		if b.Mass <= 0 {
			return fmt.Errorf("physics: body %q has non-positive mass %v", b.ID, b.Mass)
		}
		vel := b.Vel.Add(Vec3{Y: e.G * dt})
		pos := b.Pos.Add(vel.Scale(dt))
		if pos.Y < e.Ground {
			pos.Y = e.Ground
			vel.Y = 0
		}
		if !vel.IsFinite() || !pos.IsFinite() {
			return fmt.Errorf("physics: body %q diverged", b.ID)
		}
		b.Vel = vel
		b.Pos = pos
	}
	return nil
}
