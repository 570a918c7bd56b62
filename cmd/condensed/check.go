package main

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/dray-io/fimcondense/internal/config"
	"github.com/dray-io/fimcondense/internal/docstore"
	"github.com/dray-io/fimcondense/internal/docstore/elastic"
)

// clusterInfoer is implemented by stores that can describe the cluster.
type clusterInfoer interface {
	Info(ctx context.Context) (elastic.ClusterInfo, error)
}

// check pings store and writes a reachability line followed by the redacted
// configuration. The configuration is printed even when the ping fails.
func check(ctx context.Context, cfg *config.Config, store docstore.Store, w io.Writer) error {
	endpoint := elastic.Endpoint(cfg.Store.Scheme, cfg.Store.Host, cfg.Store.Port)

	var pingErr error
	if ci, ok := store.(clusterInfoer); ok {
		info, err := ci.Info(ctx)
		pingErr = err
		if err == nil {
			fmt.Fprintf(w, "document store %s: ok (cluster %q, version %s)\n",
				endpoint, info.ClusterName, info.Version.Number)
		}
	} else {
		pingErr = store.Ping(ctx)
		if pingErr == nil {
			fmt.Fprintf(w, "document store %s: ok\n", endpoint)
		}
	}
	if pingErr != nil {
		fmt.Fprintf(w, "document store %s: unreachable: %v\n", endpoint, pingErr)
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprintf(w, "---\n%s", out)
	return pingErr
}
