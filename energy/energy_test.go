package energy

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestIntensityArity(t *testing.T) {
	Convey("Zero intensity rejects any arguments", t, func() {
		_, err := NewIntensityFn(IntensityZero, []float64{1.0})
		So(err, ShouldNotBeNil)

		fn, err := NewIntensityFn(IntensityZero, nil)
		So(err, ShouldBeNil)
		So(fn(Position{3, 4}), ShouldEqual, 0.0)
	})

	Convey("Constant intensity requires exactly one argument", t, func() {
		_, err := NewIntensityFn(IntensityConstant, nil)
		So(err, ShouldNotBeNil)

		fn, err := NewIntensityFn(IntensityConstant, []float64{2.5})
		So(err, ShouldBeNil)
		So(fn(Position{0, 0}), ShouldEqual, 2.5)
		So(fn(Position{100, -100}), ShouldEqual, 2.5)
	})
}

func TestPiecewiseBoxInteraction(t *testing.T) {
	Convey("Given a piecewise-box kernel with cutoffs 4 and 16", t, func() {
		fn, err := NewInteractionFn(InteractionPiecewiseBox, []float64{4, 16, 10.0, 1.0})
		So(err, ShouldBeNil)

		Convey("Close positions get the first value", func() {
			So(fn(Position{0, 0}, Position{1, 0}), ShouldEqual, 10.0)
		})
		Convey("Mid-range positions get the second value", func() {
			So(fn(Position{0, 0}, Position{3, 0}), ShouldEqual, 1.0)
		})
		Convey("Far positions get zero", func() {
			So(fn(Position{0, 0}, Position{10, 0}), ShouldEqual, 0.0)
		})
	})

	Convey("Wrong arity is rejected", t, func() {
		_, err := NewInteractionFn(InteractionPiecewiseBox, []float64{1, 2, 3})
		So(err, ShouldNotBeNil)
	})
}

func TestCrossInteraction(t *testing.T) {
	Convey("Given a cross kernel", t, func() {
		fn, err := NewInteractionFn(InteractionCross, []float64{2, 5, 10, 1, 5, 0.5})
		So(err, ShouldBeNil)

		Convey("On-axis within inner radius gets innerAxis", func() {
			So(fn(Position{0, 0}, Position{2, 0}), ShouldEqual, 10.0)
		})
		Convey("Off-axis within inner radius gets innerDiag", func() {
			So(fn(Position{0, 0}, Position{1, 1}), ShouldEqual, 5.0)
		})
		Convey("Beyond outer radius is zero", func() {
			So(fn(Position{0, 0}, Position{9, 9}), ShouldEqual, 0.0)
		})
	})
}

func TestClassification(t *testing.T) {
	Convey("Every defined interaction kernel is stationary", t, func() {
		So(InteractionZero.IsStationary(), ShouldBeTrue)
		So(InteractionPiecewiseBox.IsStationary(), ShouldBeTrue)
		So(InteractionCross.IsStationary(), ShouldBeTrue)
	})

	Convey("Only the zero kernel is constant-zero", t, func() {
		So(InteractionZero.IsConstantZero(), ShouldBeTrue)
		So(InteractionPiecewiseBox.IsConstantZero(), ShouldBeFalse)
		So(InteractionCross.IsConstantZero(), ShouldBeFalse)
	})
}
