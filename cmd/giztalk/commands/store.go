package commands

import (
	"github.com/haivivi/giztalk/go/pkg/cli"
	"github.com/haivivi/giztalk/go/pkg/kv"
	"github.com/haivivi/giztalk/go/pkg/store"
)

// openStore opens the badger-backed store the server uses. Resolution
// order: --data-dir flag, the context's data_dir, ~/.giztalk/data.
func openStore() (*store.Store, error) {
	dir := dataDir
	if dir == "" {
		if cfg, err := GetConfig(); err == nil {
			if ctx, err := cfg.ResolveContext(contextName); err == nil {
				dir = ctx.DataDir
			}
		}
	}
	if dir == "" {
		paths, err := cli.NewPaths()
		if err != nil {
			return nil, err
		}
		if err := paths.EnsureDataDir(); err != nil {
			return nil, err
		}
		dir = paths.DataDir()
	}
	db, err := kv.NewBadger(kv.BadgerOptions{Dir: dir})
	if err != nil {
		return nil, err
	}
	return store.New(db), nil
}
