package window

// ring is a fixed-capacity FIFO buffer.
type ring struct {
	values []Entry
	head   int
	count  int
}

func newRing(capacity int) *ring {
	return &ring{values: make([]Entry, capacity)}
}

func (r *ring) push(e Entry) {
	tail := (r.head + r.count) % len(r.values)
	r.values[tail] = e
	r.count++
}

func (r *ring) pop() Entry {
	e := r.values[r.head]
	r.values[r.head] = Entry{}
	r.head = (r.head + 1) % len(r.values)
	r.count--
	return e
}

func (r *ring) len() int {
	return r.count
}

func (r *ring) entries() []Entry {
	out := make([]Entry, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.values[(r.head+i)%len(r.values)])
	}
	return out
}
