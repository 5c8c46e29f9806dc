package series

// dayQueue is the FIFO eviction order of resident days. Days are pushed in
// ascending order, so the front is always the oldest resident day.
type dayQueue struct {
	days []int
}

func (q *dayQueue) push(day int) {
	q.days = append(q.days, day)
}

func (q *dayQueue) front() (int, bool) {
	if len(q.days) == 0 {
		return 0, false
	}
	return q.days[0], true
}

func (q *dayQueue) popFront() {
	if len(q.days) == 0 {
		return
	}
	q.days = q.days[1:]
}

func (q *dayQueue) len() int {
	return len(q.days)
}

func (q *dayQueue) snapshot() []int {
	return append([]int(nil), q.days...)
}
