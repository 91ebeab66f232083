package scheduler

// pendingExecution is one admitted-but-not-yet-running request.
type pendingExecution struct {
	executionID string
	workflowID  string
	variables   map[string]interface{}
	priority    int
	depth       int
	seq         uint64
	index       int
}

// admissionQueue is a heap ordered by priority descending, then submission
// sequence ascending, so equal priorities dispatch first-in-first-out.
type admissionQueue []*pendingExecution

func (q admissionQueue) Len() int { return len(q) }

func (q admissionQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q admissionQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *admissionQueue) Push(x interface{}) {
	item := x.(*pendingExecution)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *admissionQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}
