package workday_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/leave-portal/internal/workday"
)

func TestWorkday(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Workday Suite")
}

var _ = Describe("ChargeableDays", func() {
	It("counts a Monday to Sunday week as five days", func() {
		Expect(workday.ChargeableDays("2024-01-01", "2024-01-07", 0)).To(Equal(5))
	})

	It("counts a single weekday as one day", func() {
		Expect(workday.ChargeableDays("2024-01-03", "2024-01-03", 0)).To(Equal(1))
	})

	It("counts a single weekend day as zero", func() {
		Expect(workday.ChargeableDays("2024-01-06", "2024-01-06", 0)).To(Equal(0))
		Expect(workday.ChargeableDays("2024-01-07", "2024-01-07", 0)).To(Equal(0))
	})

	It("returns zero for an inverted range", func() {
		Expect(workday.ChargeableDays("2024-01-10", "2024-01-01", 0)).To(Equal(0))
	})

	It("returns zero for unparseable dates", func() {
		Expect(workday.ChargeableDays("not-a-date", "2024-01-01", 0)).To(Equal(0))
		Expect(workday.ChargeableDays("2024-01-01", "", 0)).To(Equal(0))
	})

	It("lets a positive override win even over an inverted range", func() {
		Expect(workday.ChargeableDays("2024-01-10", "2024-01-01", 2)).To(Equal(2))
		Expect(workday.ChargeableDays("garbage", "garbage", 3)).To(Equal(3))
	})

	It("ignores non-positive overrides", func() {
		Expect(workday.ChargeableDays("2024-01-01", "2024-01-02", -4)).To(Equal(2))
	})

	It("ignores the time of day on timestamps", func() {
		Expect(workday.ChargeableDays("2024-01-05T23:30:00Z", "2024-01-08T01:00:00Z", 0)).To(Equal(2))
	})

	It("spans multiple weeks and month boundaries", func() {
		// Wed 2024-01-31 .. Tue 2024-02-13: 10 weekdays
		Expect(workday.ChargeableDays("2024-01-31", "2024-02-13", 0)).To(Equal(10))
	})
})

var _ = Describe("CountWeekdays", func() {
	It("agrees with a day-by-day count", func() {
		start := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
		for span := 0; span < 30; span++ {
			end := start.AddDate(0, 0, span)
			expected := 0
			for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
				if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
					expected++
				}
			}
			Expect(workday.CountWeekdays(start, end)).To(Equal(expected), "span %d", span)
		}
	})
})
