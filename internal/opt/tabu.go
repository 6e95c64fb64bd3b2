package opt

// tabuList is a FIFO of recent moves with O(1) membership. A move may appear
// more than once; counts track how many copies are queued.
type tabuList struct {
	queue  []Move
	counts map[Move]int
}

func newTabuList() *tabuList {
	return &tabuList{counts: map[Move]int{}}
}

func (l *tabuList) Contains(mv Move) bool { return l.counts[mv] > 0 }

func (l *tabuList) Len() int { return len(l.queue) }

func (l *tabuList) Push(mv Move) {
	l.queue = append(l.queue, mv)
	l.counts[mv]++
}

// Trim evicts the oldest moves until at most tenure remain.
func (l *tabuList) Trim(tenure int) {
	if tenure < 0 {
		tenure = 0
	}
	for len(l.queue) > tenure {
		old := l.queue[0]
		l.queue = l.queue[1:]
		if l.counts[old]--; l.counts[old] <= 0 {
			delete(l.counts, old)
		}
	}
}
