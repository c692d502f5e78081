package server

// ChanSvc runs queued functions one at a time on its own goroutine. Every
// engine access from the server goes through one ChanSvc, so ticks and
// renderer messages never interleave.
type ChanSvc chan func()

// SvcSync runs code on the service and waits for its result.
func SvcSync[T any](s ChanSvc, code func() (T, error)) (T, error) {
	result := make(chan struct{})
	var value T
	var err error
	Svc(s, func() {
		defer close(result)
		value, err = code()
	})
	<-result
	return value, err
}

// Svc queues code on the service without waiting.
func Svc(s ChanSvc, code func()) {
	go func() { // using a goroutine so the channel won't block
		s <- code
	}()
}

// RunSvc runs a service until the channel is closed. Nothing may be queued
// after closing.
func RunSvc(s ChanSvc) {
	go func() {
		for cmd := range s {
			cmd()
		}
	}()
}
