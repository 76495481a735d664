package geo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

var (
	waterloo = Point{Lat: 43.4643, Lng: -80.5204}
	toronto  = Point{Lat: 43.6532, Lng: -79.3832}
)

func TestDistance(t *testing.T) {
	Convey("Given the haversine distance", t, func() {
		Convey("One degree of latitude is about 111 km", func() {
			d := Distance(Point{Lat: 10, Lng: 20}, Point{Lat: 11, Lng: 20})
			So(d, ShouldAlmostEqual, 111.19, 0.05)
		})

		Convey("Identical points are 0 km apart", func() {
			So(Distance(waterloo, waterloo), ShouldEqual, 0)
		})

		Convey("Waterloo to Toronto is roughly 94 km and symmetric", func() {
			d := Distance(waterloo, toronto)
			So(d, ShouldBeBetween, 85.0, 100.0)
			So(math.Abs(d-Distance(toronto, waterloo)), ShouldBeLessThan, 1e-9)
		})
	})
}

func TestPointValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Point
		ok   bool
	}{
		{"valid", waterloo, true},
		{"poles", Point{Lat: 90, Lng: 180}, true},
		{"lat out of range", Point{Lat: 91}, false},
		{"lng out of range", Point{Lng: -181}, false},
		{"nan", Point{Lat: math.NaN()}, false},
		{"inf", Point{Lng: math.Inf(1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidPoint) {
				t.Fatalf("expected ErrInvalidPoint, got %v", err)
			}
		})
	}
}

type countingLocator struct {
	calls int
	point Point
	err   error
	block bool
}

func (c *countingLocator) Locate(ctx context.Context) (Point, error) {
	c.calls++
	if c.block {
		<-ctx.Done()
		return Point{}, ctx.Err()
	}
	return c.point, c.err
}

func TestCachedLocator(t *testing.T) {
	Convey("Given a cached locator over a counting source", t, func() {
		now := time.Unix(1_700_000_000, 0)
		clock := func() time.Time { return now }
		src := &countingLocator{point: waterloo}
		l := NewCachedLocator(src, WithClock(clock), WithMaxAge(5*time.Minute), WithTimeout(20*time.Millisecond))
		ctx := context.Background()

		Convey("A position younger than the max age is reused", func() {
			p, err := l.Locate(ctx)
			So(err, ShouldBeNil)
			So(p, ShouldResemble, waterloo)

			now = now.Add(4 * time.Minute)
			_, err = l.Locate(ctx)
			So(err, ShouldBeNil)
			So(src.calls, ShouldEqual, 1)
		})

		Convey("An older position triggers a fresh acquisition", func() {
			_, _ = l.Locate(ctx)
			now = now.Add(6 * time.Minute)
			_, err := l.Locate(ctx)
			So(err, ShouldBeNil)
			So(src.calls, ShouldEqual, 2)
		})

		Convey("A slow source is cut off by the timeout", func() {
			src.block = true
			_, err := l.Locate(ctx)
			So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})

		Convey("An invalid position from the source is rejected", func() {
			src.point = Point{Lat: 200}
			_, err := l.Locate(ctx)
			So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
			So(errors.Is(err, ErrInvalidPoint), ShouldBeTrue)
		})
	})
}

func TestStaticLocator(t *testing.T) {
	p, err := StaticLocator{Point: toronto}.Locate(context.Background())
	if err != nil || p != toronto {
		t.Fatalf("unexpected result %v %v", p, err)
	}
}
