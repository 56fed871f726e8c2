package guard

import "time"

// Observer receives measurements from a guard. Implementations must be safe
// for concurrent use; pkg/metrics provides a Prometheus implementation.
type Observer interface {
	// ObserveResolve is called after every resolver run.
	ObserveResolve(d time.Duration, meta Meta, err error)

	// ObserveWrite is called after every write operation.
	// op is one of "set_queries", "set" or "reset".
	ObserveWrite(op string, history HistoryMode, err error)

	// ObserveNotify is called after listeners were notified.
	ObserveNotify(listeners int)
}

type nopObserver struct{}

func (nopObserver) ObserveResolve(time.Duration, Meta, error) {}
func (nopObserver) ObserveWrite(string, HistoryMode, error)   {}
func (nopObserver) ObserveNotify(int)                         {}
