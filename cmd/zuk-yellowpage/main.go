// Command zuk-yellowpage runs a standalone coordination node: it joins the
// gossip cluster, publishes its role, and logs every membership change
// along with the shard index the node would serve. Useful for poking at a
// cluster without a full receiver deployment.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jessevdk/go-flags"

	"github.com/jorisvilardell/zuklink/yellowpage"
)

func setupLogger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))

	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger
}

func run() int {
	logger := setupLogger()

	conf := yellowpage.DefaultConfig()
	conf.NodeID = opts.NodeID
	conf.ClusterID = opts.ClusterID
	conf.ListenAddr = fmt.Sprintf("%s:%d", opts.BindHost, opts.GossipPort)
	conf.AdvertiseAddr = opts.Advertise
	conf.Seeds = parseSeeds(opts.Seeds)
	conf.DataDir = opts.DataDir
	conf.Logger = logger

	yp, err := yellowpage.Start(conf)
	if err != nil {
		level.Error(logger).Log("msg", "failed to start", "err", err)
		return 1
	}

	yp.SetMetadata("role", opts.Role)

	views, cancel := yp.Subscribe()
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case view, ok := <-views:
			if !ok {
				return 0
			}

			level.Info(logger).Log(
				"msg", "membership changed",
				"cluster_size", view.Size(),
				"self_index", view.SelfIndex,
				"live_nodes", fmt.Sprintf("%v", view.Live),
			)
		case <-interrupt:
			level.Info(logger).Log("msg", "received interrupt signal, shutting down")

			if err := yp.Shutdown(); err != nil {
				level.Error(logger).Log("msg", "shutdown failed", "err", err)
				return 1
			}

			return 0
		}
	}
}

func main() {
	p := flags.NewParser(&opts, flags.Default)

	if _, err := p.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); !ok || flagsErr.Type != flags.ErrHelp {
			fmt.Println("cli error:", err)
		}

		os.Exit(2)
	}

	os.Exit(run())
}
