package pipeline

import "context"

// Tee copies every value received on in to n output channels, in order.
// A value is handed to all outputs before the next one is read, so the
// slowest reader sets the pace. The outputs are closed when in is closed or
// ctx is done.
func Tee[T any](ctx context.Context, in <-chan T, n int) []<-chan T {
	outs := make([]chan T, n)
	ros := make([]<-chan T, n)
	for i := range outs {
		outs[i] = make(chan T)
		ros[i] = outs[i]
	}

	go func() {
		defer func() {
			for _, out := range outs {
				close(out)
			}
		}()

		for {
			var (
				v  T
				ok bool
			)
			select {
			case v, ok = <-in:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}

			for _, out := range outs {
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ros
}
