package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/inkwell-ocr/inkwell/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should start empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording record keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the key is new", func() {
				seen := d.SeenAndRecord(context.Background(), "iam/a01-000u-00")

				Convey("Then it should return false and record the key", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the key was already seen", func() {
				d.SeenAndRecord(context.Background(), "iam/a01-000u-00")

				seen := d.SeenAndRecord(context.Background(), "iam/a01-000u-00")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And multiple keys are recorded", func() {
				keys := []string{"rec-1", "rec-2", "rec-3", "rec-4", "rec-5"}

				for _, key := range keys {
					seen := d.SeenAndRecord(context.Background(), key)
					So(seen, ShouldBeFalse)
				}

				Convey("Then all keys should be recorded", func() {
					So(d.Size(), ShouldEqual, int64(len(keys)))

					for _, key := range keys {
						seen := d.SeenAndRecord(context.Background(), key)
						So(seen, ShouldBeTrue)
					}
				})
			})
		})

		Convey("When unrecording keys", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the key exists", func() {
				d.SeenAndRecord(context.Background(), "rec-1")
				So(d.Size(), ShouldEqual, 1)

				d.Unrecord(context.Background(), "rec-1")

				Convey("Then it should be removed", func() {
					So(d.Size(), ShouldEqual, 0)

					seen := d.SeenAndRecord(context.Background(), "rec-1")
					So(seen, ShouldBeFalse)
				})
			})

			Convey("And the key doesn't exist", func() {
				d.Unrecord(context.Background(), "nonexistent")

				Convey("Then it should not affect the size", func() {
					So(d.Size(), ShouldEqual, 0)
				})
			})
		})

		Convey("When the deduper is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

			Convey("And more keys than the bound are recorded", func() {
				for i := 0; i < 5; i++ {
					d.SeenAndRecord(context.Background(), fmt.Sprintf("rec-%d", i))
				}

				Convey("Then the oldest keys should be evicted", func() {
					So(d.Size(), ShouldEqual, 3)

					// rec-0 and rec-1 were evicted FIFO
					So(d.SeenAndRecord(context.Background(), "rec-0"), ShouldBeFalse)

					// rec-4 is still held
					d2 := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
					for i := 0; i < 5; i++ {
						d2.SeenAndRecord(context.Background(), fmt.Sprintf("rec-%d", i))
					}
					So(d2.SeenAndRecord(context.Background(), "rec-4"), ShouldBeTrue)
				})
			})
		})

		Convey("When the deduper is unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

			Convey("And many keys are recorded", func() {
				for i := 0; i < 1000; i++ {
					d.SeenAndRecord(context.Background(), fmt.Sprintf("rec-%d", i))
				}

				Convey("Then nothing should be evicted", func() {
					So(d.Size(), ShouldEqual, 1000)
					So(d.SeenAndRecord(context.Background(), "rec-0"), ShouldBeTrue)
				})
			})
		})
	})
}

func TestInMemoryDeduperConcurrency(t *testing.T) {
	Convey("Given concurrent access to the deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When many goroutines record the same keys", func() {
			const goroutines = 8
			const keys = 100

			newCount := make([]int, goroutines)
			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < keys; i++ {
						if !d.SeenAndRecord(context.Background(), fmt.Sprintf("rec-%d", i)) {
							newCount[g]++
						}
					}
				}(g)
			}
			wg.Wait()

			Convey("Then each key should be recorded exactly once", func() {
				So(d.Size(), ShouldEqual, keys)

				total := 0
				for _, c := range newCount {
					total += c
				}
				So(total, ShouldEqual, keys)
			})
		})
	})
}
