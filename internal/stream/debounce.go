package stream

import "time"

// Debounce forwards the most recent value received on in after the input has
// been quiet for d. Bursts collapse to their last value. When eq is non-nil,
// an emission equal to the previously emitted value is dropped (consecutive-
// duplicate suppression). The forwarding goroutine exits when in is closed
// or done is closed.
//
// Debouncing only bounds event frequency; it does not sequence overlapping
// request chains started from separate emissions.
func Debounce[T any](done <-chan struct{}, in <-chan T, d time.Duration, eq func(a, b T) bool) <-chan T {
	out := make(chan T, 1)

	go func() {
		defer close(out)

		var (
			pending T
			have    bool
			lastOut T
			emitted bool
		)

		timer := time.NewTimer(d)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()
		var fire <-chan time.Time

		for {
			select {
			case <-done:
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				pending, have = v, true
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d)
				fire = timer.C
			case <-fire:
				fire = nil
				if !have {
					continue
				}
				have = false
				if eq != nil && emitted && eq(lastOut, pending) {
					continue
				}
				lastOut, emitted = pending, true
				select {
				case out <- pending:
				case <-done:
					return
				}
			}
		}
	}()

	return out
}

// Offer enqueues v without blocking the caller. When the channel is full the
// oldest queued value is dropped first: request channels conflate under
// load, keeping only the most recent inputs.
func Offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
