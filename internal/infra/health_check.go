package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const checkExecInterval = 5 * time.Second

// ExecutableReplaced is closed once the running binary is modified on disk, so
// a supervisor can restart the process with the new build. It never fires when
// the binary cannot be located.
func ExecutableReplaced(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	entry := log.WithField("context", "infra")

	exeFilename, err := os.Executable()
	if err != nil {
		entry.WithError(err).Warn("cant resolve executable path")
		return ch
	}
	stat, err := os.Stat(exeFilename)
	if err != nil {
		entry.WithError(err).Warn("cant stat executable")
		return ch
	}
	started := stat.ModTime()

	go func() {
		ticker := time.NewTicker(checkExecInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(exeFilename)
				if err != nil {
					entry.WithError(err).Debug("cant stat executable")
					continue
				}
				if !started.Equal(stat.ModTime()) {
					close(ch)
					return
				}
			}
		}
	}()
	return ch
}
