package order

// orderState implements the state pattern for the order lifecycle:
// pending -> paid -> processing -> shipped -> delivered, with cancelled
// reachable from any state before shipped.
type orderState interface {
	Status() Status
	OnPaid(o *Order) (orderState, error)
	OnProcessing(o *Order) (orderState, error)
	OnShipped(o *Order) (orderState, error)
	OnDelivered(o *Order) (orderState, error)
	OnCancelled(o *Order) (orderState, error)
}

// baseState rejects every transition; concrete states override the legal ones.
type baseState struct{}

func (baseState) OnPaid(*Order) (orderState, error) { return nil, ErrInvalidStateTransition }
func (baseState) OnProcessing(*Order) (orderState, error) { return nil, ErrInvalidStateTransition }
func (baseState) OnShipped(*Order) (orderState, error) { return nil, ErrInvalidStateTransition }
func (baseState) OnDelivered(*Order) (orderState, error) { return nil, ErrInvalidStateTransition }
func (baseState) OnCancelled(*Order) (orderState, error) { return nil, ErrInvalidStateTransition }

type pendingState struct{ baseState }

func (pendingState) Status() Status { return StatusPending }
func (pendingState) OnPaid(*Order) (orderState, error) { return paidState{}, nil }
func (pendingState) OnCancelled(*Order) (orderState, error) { return cancelledState{}, nil }

type paidState struct{ baseState }

func (paidState) Status() Status { return StatusPaid }
func (paidState) OnProcessing(*Order) (orderState, error) { return processingState{}, nil }
func (paidState) OnShipped(*Order) (orderState, error) { return shippedState{}, nil }
func (paidState) OnCancelled(*Order) (orderState, error) { return cancelledState{}, nil }

type processingState struct{ baseState }

func (processingState) Status() Status { return StatusProcessing }
func (processingState) OnShipped(*Order) (orderState, error) { return shippedState{}, nil }
func (processingState) OnCancelled(*Order) (orderState, error) { return cancelledState{}, nil }

type shippedState struct{ baseState }

func (shippedState) Status() Status { return StatusShipped }
func (shippedState) OnDelivered(*Order) (orderState, error) { return deliveredState{}, nil }

type deliveredState struct{ baseState }

func (deliveredState) Status() Status { return StatusDelivered }

type cancelledState struct{ baseState }

func (cancelledState) Status() Status { return StatusCancelled }

func stateFor(s Status) orderState {
	switch s {
	case StatusPending:
		return pendingState{}
	case StatusPaid:
		return paidState{}
	case StatusProcessing:
		return processingState{}
	case StatusShipped:
		return shippedState{}
	case StatusDelivered:
		return deliveredState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return pendingState{}
	}
}

func (o *Order) transition(fn func(orderState) (orderState, error)) error {
	next, err := fn(stateFor(o.Status))
	if err != nil {
		return err
	}
	o.Status = next.Status()
	o.touch()
	return nil
}

func (o *Order) MarkPaid() error {
	return o.transition(func(s orderState) (orderState, error) { return s.OnPaid(o) })
}

func (o *Order) MarkProcessing() error {
	return o.transition(func(s orderState) (orderState, error) { return s.OnProcessing(o) })
}

func (o *Order) MarkShipped() error {
	return o.transition(func(s orderState) (orderState, error) { return s.OnShipped(o) })
}

func (o *Order) MarkDelivered() error {
	return o.transition(func(s orderState) (orderState, error) { return s.OnDelivered(o) })
}

func (o *Order) Cancel() error {
	return o.transition(func(s orderState) (orderState, error) { return s.OnCancelled(o) })
}

// Cancellable reports whether the order has not shipped yet.
func (o *Order) Cancellable() bool {
	switch o.Status {
	case StatusPending, StatusPaid, StatusProcessing:
		return true
	default:
		return false
	}
}
