package action

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/torosent/symphoner/internal/feeder"
)

type dataAction struct {
	next   Action
	feeder feeder.Feeder
}

func withData(a Action, def Definition) (Action, error) {
	path := def.Data.File
	if path == "" {
		return nil, fmt.Errorf("data section requires a file")
	}
	if !filepath.IsAbs(path) && def.Dir != "" {
		path = filepath.Join(def.Dir, path)
	}
	loop := def.Data.Loop == nil || *def.Data.Loop
	f, err := feeder.Open(path, loop)
	if err != nil {
		return nil, err
	}
	return &dataAction{next: a, feeder: f}, nil
}

func (a *dataAction) Invoke(ctx context.Context, cfg Config) *Result {
	rec, err := a.feeder.Next(ctx)
	if err != nil {
		return Completed(err)
	}
	cfg.Settings = feeder.Merge(cfg.Settings, rec)
	return a.next.Invoke(ctx, cfg)
}
