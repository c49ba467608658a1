package shell

import (
	"os"
	"os/signal"
)

// ignoreInterrupts keeps SIGINT from killing the shell while a pipeline
// runs in the foreground. The children share the terminal's process group
// and still receive it. The returned function restores default handling.
func ignoreInterrupts() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
