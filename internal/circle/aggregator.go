package circle

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/food-circles/internal/order"
)

const (
	boundsLead = 5.0
	// boundsTail covers the circle window plus a short buffer.
	boundsTail = Window + 10.0
	// betweenSlack widens Between on both sides.
	betweenSlack = 5.0
)

type Circle struct {
	Anchor    float64       `json:"anchor"`
	ExpiresAt float64       `json:"expires_at"`
	Orders    []order.Order `json:"orders"`
	Total     float64       `json:"total"`
}

func (c Circle) Count() int {
	return len(c.Orders)
}

// Aggregate is an establishment's orders grouped into circles, ordered by anchor.
type Aggregate struct {
	Circles       []Circle `json:"circles"`
	BoundsStart   float64  `json:"bounds_start"`
	BoundsEnd     float64  `json:"bounds_end"`
	GrandTotal    float64  `json:"grand_total"`
	OrderCount    int      `json:"order_count"`
	CustomerCount int      `json:"customer_count"`
}

// EmptyAggregate is the result for an empty order set. It is not an error
// and differs from an aggregate whose orders add up to zero.
var EmptyAggregate = Aggregate{}

func (a Aggregate) IsEmpty() bool {
	return len(a.Circles) == 0
}

// GroupByCircle sorts a copy of orders by (anchor, createdAt) and opens a
// new circle whenever the anchor changes.
func GroupByCircle(orders []order.Order) Aggregate {
	if len(orders) == 0 {
		return EmptyAggregate
	}

	sorted := make([]order.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Anchor != sorted[j].Anchor {
			return sorted[i].Anchor < sorted[j].Anchor
		}
		return sorted[i].CreatedAt < sorted[j].CreatedAt
	})

	var (
		circles    []Circle
		totals     []decimal.Decimal
		grandTotal = decimal.Zero
		customers  = make(map[string]struct{})
	)

	for i, o := range sorted {
		if i == 0 || o.Anchor != sorted[i-1].Anchor {
			circles = append(circles, Circle{Anchor: o.Anchor, ExpiresAt: o.Anchor + Window})
			totals = append(totals, decimal.Zero)
		}

		last := len(circles) - 1
		circles[last].Orders = append(circles[last].Orders, o)

		amount := decimal.NewFromFloat(o.Total)
		totals[last] = totals[last].Add(amount)
		grandTotal = grandTotal.Add(amount)

		if o.UserID != "" {
			customers[o.UserID] = struct{}{}
		}
	}

	for i := range circles {
		circles[i].Total = totals[i].Round(2).InexactFloat64()
	}

	return Aggregate{
		Circles:       circles,
		BoundsStart:   sorted[0].Anchor - boundsLead,
		BoundsEnd:     sorted[len(sorted)-1].Anchor + boundsTail,
		GrandTotal:    grandTotal.Round(2).InexactFloat64(),
		OrderCount:    len(sorted),
		CustomerCount: len(customers),
	}
}

// Between regroups only the orders created within [from-5, to+5]. Circles
// keep their anchor, but totals, positions and bounds describe the selected
// orders alone.
func (a Aggregate) Between(from, to float64) Aggregate {
	var selected []order.Order
	for _, c := range a.Circles {
		for _, o := range c.Orders {
			if o.CreatedAt >= from-betweenSlack && o.CreatedAt <= to+betweenSlack {
				selected = append(selected, o)
			}
		}
	}
	return GroupByCircle(selected)
}
