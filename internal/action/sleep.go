package action

import (
	"context"
	"fmt"
	"time"
)

func newSleepAction(def Definition) (Action, error) {
	if def.Sleep == nil || def.Sleep.Duration <= 0 {
		return nil, fmt.Errorf("sleep action requires a positive duration")
	}
	d := def.Sleep.Duration

	return AsyncFunc(func(ctx context.Context, _ Config, resolve func(error)) {
		timer := time.NewTimer(d)
		go func() {
			defer timer.Stop()
			select {
			case <-timer.C:
				resolve(nil)
			case <-ctx.Done():
				resolve(ctx.Err())
			}
		}()
	}), nil
}
