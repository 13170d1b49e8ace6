package domain

// Availability is the capacity view of one event. Confirmed counts paid
// bookings (plus legacy bookings for workshops); Held counts live pending holds.
type Availability struct {
	Capacity  *int `json:"capacity"`
	Confirmed int  `json:"confirmed"`
	Held      int  `json:"held"`
}

// Remaining is max(0, capacity − confirmed). ok is false when capacity is unlimited.
func (a Availability) Remaining() (remaining int, ok bool) {
	if a.Capacity == nil {
		return 0, false
	}
	return max(0, *a.Capacity-a.Confirmed), true
}

// SoldOut holds only when a capacity is set and confirmed bookings reach it.
func (a Availability) SoldOut() bool {
	return a.Capacity != nil && a.Confirmed >= *a.Capacity
}

// Admits reports whether n more places fit alongside confirmed bookings and other buyers' holds.
func (a Availability) Admits(n int) bool {
	if a.Capacity == nil {
		return true
	}
	return a.Confirmed+a.Held+n <= *a.Capacity
}

// Bookable is the number of places a new buyer could take right now.
func (a Availability) Bookable() (n int, ok bool) {
	if a.Capacity == nil {
		return 0, false
	}
	return max(0, *a.Capacity-a.Confirmed-a.Held), true
}
