package atomic_float

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAtomicAdd(t *testing.T) {
	Convey("When AtomicAdd is called", t, func() {
		Convey("When multiple writers add to the float value concurrently", func() {
			af := NewAtomicFloat64(0.0)
			num_ops := 3000
			num_writers := 200

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(num_writers)
			adder := func() {
				<-start
				for i := 0; i < num_ops; i++ {
					for succeeded := false; !succeeded; _, succeeded = af.AtomicAdd(1.0) {
					}
				}
				wg.Done()
			}

			for i := 0; i < num_writers; i++ {
				go adder()
			}

			// Wait for goroutines to begin
			time.Sleep(time.Millisecond * 10)
			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, float64(num_ops*num_writers))
		})

		Convey("When multiple writers increment and decrement the float value concurrently", func() {
			af := NewAtomicFloat64(0.0)
			num_ops := 3000
			num_writers := 200

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(num_writers * 2)
			worker := func(addend float64) {
				<-start
				for i := 0; i < num_ops; i++ {
					af.Accumulate(addend)
				}
				wg.Done()
			}

			for i := 0; i < num_writers; i++ {
				go worker(1.0)
				go worker(-1.0)
			}

			time.Sleep(time.Millisecond * 10)
			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, float64(0.0))
		})
	})

	Convey("When a value is set", t, func() {
		var af AtomicFloat64
		So(af.AtomicRead(), ShouldEqual, 0.0)
		af.AtomicSet(2.5)
		So(af.AtomicRead(), ShouldEqual, 2.5)
		newVal, succeeded := af.AtomicAdd(0.5)
		So(succeeded, ShouldBeTrue)
		So(newVal, ShouldEqual, 3.0)
	})
}
