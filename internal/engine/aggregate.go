package engine

import (
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// Aggregate reduces field across records. Null and missing values are
// dropped first; count counts what survives. Values that do not coerce to a
// number are skipped by sum, avg, min and max. Empty inputs yield 0 for
// every type, and unknown types yield 0.
func Aggregate(records []models.Record, field string, aggType models.AggregationType) float64 {
	present := make([]models.Value, 0, len(records))
	for _, r := range records {
		v := GetField(r, field)
		if v.IsNil() {
			continue
		}
		present = append(present, v)
	}

	if aggType == models.AggCount {
		return float64(len(present))
	}

	nums := make([]float64, 0, len(present))
	for _, v := range present {
		if f, ok := v.Float(); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return 0
	}

	switch aggType {
	case models.AggSum:
		return sum(nums)
	case models.AggAvg:
		return sum(nums) / float64(len(nums))
	case models.AggMin:
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return m
	case models.AggMax:
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return m
	default:
		return 0
	}
}

func sum(nums []float64) float64 {
	var total float64
	for _, n := range nums {
		total += n
	}
	return total
}
