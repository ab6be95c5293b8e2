// Package serve implements the serve command.
package serve

import (
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/metawarc/internal/common"
	"github.com/dtnitsch/metawarc/pkg/query"
	"github.com/dtnitsch/metawarc/pkg/server"
)

// ServeAction serves the catalog read-only over HTTP until interrupted.
func ServeAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	store, err := env.OpenExistingCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(env.Config.ServerAddr, store, query.New(store, env.Logger), env.Metrics, env.Logger)
	return srv.Run(c.Context)
}
