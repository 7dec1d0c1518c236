// Command metad is the metadata control plane process: it serves the
// balancer and config manager over the configured KV substrate until
// terminated. Bootstrap follows the teacher's cmd/baud.go shape (urfave/cli
// start command, WaitShutdown signal handling) adapted to metad's own
// components instead of gm's cluster/apiServer/rpcServer trio.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "gopkg.in/urfave/cli.v2"

	"github.com/fgr-araujo/nebula/internal/kv"
	"github.com/fgr-araujo/nebula/internal/kv/boltkv"
	"github.com/fgr-araujo/nebula/internal/kv/etcd3kv"
	"github.com/fgr-araujo/nebula/internal/log"
	"github.com/fgr-araujo/nebula/internal/meta/balance"
	"github.com/fgr-araujo/nebula/internal/meta/cluster"
	"github.com/fgr-araujo/nebula/internal/meta/config"
	"github.com/fgr-araujo/nebula/internal/metrics"
	"github.com/fgr-araujo/nebula/internal/serverconfig"
)

const flagConfig = "config"

var app = &cli.App{
	Name:        "metad",
	Usage:       "metad [command]",
	Description: "Nebula metadata control plane.",
	Commands: []*cli.Command{
		startCommand,
	},
}

var startCommand = &cli.Command{
	Name:        "start",
	Usage:       "metad start",
	Description: "Start the metadata control plane process",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "config file path"},
	},
	Action: func(c *cli.Context) error {
		return run(c.String(flagConfig))
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "metad: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := serverconfig.NewConfig(configPath)

	if err := log.Init(filepath.Join(cfg.Log.LogPath, "metad.log"), cfg.Log.Level); err != nil {
		return fmt.Errorf("metad: failed to init logging: %w", err)
	}
	defer log.Sync()

	store, err := openStore(cfg)
	if err != nil {
		log.Error("metad: failed to open KV store: %v", err)
		return err
	}
	defer store.Close()

	alloc := cluster.NewAllocation(store)
	registry := cluster.NewRegistry(store)
	admin := balance.NewGRPCAdminClient()

	spaces := staticSpaces(cfg)
	// balancer.Balance is invoked by the admin RPC surface, out of scope here.
	balancer := balance.NewBalancer(store, alloc, registry, admin, cfg.Cluster.BalanceConcurrency, spaces)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := balancer.Recover(ctx); err != nil {
		log.Error("metad: balance plan recovery failed: %v", err)
		return err
	}

	configStore := config.NewStore(store)
	configMgr := config.NewManager(configStore, config.Meta, cfg.Cluster.ConfigPollInterval())
	if err := configMgr.Start(); err != nil {
		log.Error("metad: config manager failed to start: %v", err)
		return err
	}
	defer configMgr.Close()

	promReg := prometheus.NewRegistry()
	metrics.Register(promReg)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Cluster.RPCPort+1),
		Handler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metad: metrics server error: %v", err)
		}
	}()
	defer httpSrv.Close()

	log.Info("metad has started, kv-backend[%v] rpc-port[%v]", cfg.Cluster.KVBackend, cfg.Cluster.RPCPort)

	waitShutdown()
	log.Info("metad is shutting down")
	return nil
}

func openStore(cfg *serverconfig.Config) (kv.Store, error) {
	switch cfg.Cluster.KVBackend {
	case serverconfig.KVBackendEtcd3:
		return etcd3kv.Dial(cfg.Cluster.EtcdEndpointList(), cfg.Cluster.AdminRPCTimeout())
	default:
		return boltkv.Open(filepath.Join(cfg.Module.DataPath, "metad.db"))
	}
}

func staticSpaces(cfg *serverconfig.Config) func(context.Context) ([]cluster.Space, error) {
	spaces := make([]cluster.Space, 0, len(cfg.Cluster.Spaces))
	for _, s := range cfg.Cluster.Spaces {
		spaces = append(spaces, cluster.Space{
			ID:             cluster.SpaceID(s.ID),
			Name:           s.Name,
			PartitionCount: s.PartitionCount,
			ReplicaFactor:  s.ReplicaFactor,
		})
	}
	return func(context.Context) ([]cluster.Space, error) { return spaces, nil }
}

func waitShutdown() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-sigs
}
