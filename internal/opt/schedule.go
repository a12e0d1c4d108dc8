package opt

// StopTime is when a vehicle reaches, starts serving and leaves one stop.
type StopTime struct {
	Customer int `json:"customer"`
	Arrive   int `json:"arrive"`
	Start    int `json:"start"`
	Finish   int `json:"finish"`
	Late     int `json:"late,omitempty"`
}

// Schedule computes per-stop times for every route with the same rules as
// TotalViolatedTime, so the Late values of a route sum to its violated time.
func Schedule(p *Problem, s Solution) [][]StopTime {
	out := make([][]StopTime, len(s.Routes))
	for ri, r := range s.Routes {
		if len(r.Stops) == 0 {
			continue
		}
		times := make([]StopTime, len(r.Stops))
		depot := p.Customers[DepotIndex]
		start := max(0, depot.HardTW.Earliest)
		times[0] = StopTime{Customer: r.Stops[0], Start: start, Finish: start + depot.ServiceTime}
		t := times[0].Finish
		for i := 1; i < len(r.Stops); i++ {
			prev, c := r.Stops[i-1], r.Stops[i]
			st := StopTime{Customer: c, Arrive: t + p.Times[prev][c]}
			tw := p.Customers[c].HardTW
			if st.Arrive > tw.Latest {
				st.Late = st.Arrive - tw.Latest
			}
			st.Start = max(st.Arrive, tw.Earliest)
			st.Finish = st.Start + p.Customers[c].ServiceTime
			t = st.Finish
			times[i] = st
		}
		out[ri] = times
	}
	return out
}
