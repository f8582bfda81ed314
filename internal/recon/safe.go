package recon

import (
	"fmt"
	"sync"
)

// goSafe runs fn on a new goroutine tracked by wg. A panic in fn is recovered
// and handed to onPanic as an error; it never escapes the goroutine.
func goSafe(wg *sync.WaitGroup, fn func(), onPanic func(error)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if p := recover(); p != nil {
				onPanic(fmt.Errorf("panic: %v", p))
			}
		}()
		fn()
	}()
}
