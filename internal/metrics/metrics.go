package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	CyclesCompleted   Counter
	CycleErrors       Counter
	SignalsGenerated  Counter
	SignalsRejected   Counter
	OrdersPlaced      Counter
	OrdersFailed      Counter
	OrdersCanceled    Counter
	KillSwitchEngaged Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		CyclesCompleted:   n,
		CycleErrors:       n,
		SignalsGenerated:  n,
		SignalsRejected:   n,
		OrdersPlaced:      n,
		OrdersFailed:      n,
		OrdersCanceled:    n,
		KillSwitchEngaged: n,
	}
}
