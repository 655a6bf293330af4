package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vx-labs/framelock/barrier"
	"github.com/vx-labs/framelock/capture"
	"github.com/vx-labs/framelock/cli"
	"github.com/vx-labs/framelock/cluster"
	"github.com/vx-labs/framelock/config"
	"github.com/vx-labs/framelock/framesync"
	"github.com/vx-labs/framelock/network"
	"github.com/vx-labs/framelock/peers"
)

const (
	FLAG_NAME_METRICS = "metrics"
)

func nodesFromConfig(c config.ClusterConfig) (peers.NodeStore, error) {
	nodes := make([]peers.Node, len(c.Nodes))
	for idx, n := range c.Nodes {
		nodes[idx] = peers.Node{
			ID:       n.ID,
			Address:  n.Address,
			SyncPort: n.Port,
			SwapLock: n.SwapLock,
		}
	}
	return peers.FromNodes(nodes...)
}

func runtimeConfig(v *viper.Viper, c config.Config, registry prometheus.Registerer) (cluster.Config, error) {
	nodes, err := nodesFromConfig(c.Cluster)
	if err != nil {
		return cluster.Config{}, err
	}
	format, err := capture.ParseFormat(c.Capture.Format)
	if err != nil {
		return cluster.Config{}, err
	}
	mode := cluster.Remote
	if c.Local.Node >= 0 {
		mode = cluster.LocalServer
		if c.Local.Client {
			mode = cluster.LocalClient
		}
	}
	syncConfig := framesync.DefaultConfig()
	syncConfig.SyncTimeout = c.Sync.Timeout
	syncConfig.WatchdogInterval = c.Sync.WatchdogInterval
	syncConfig.PrintSyncMessage = c.Sync.PrintWaitMessage
	if c.Sync.WaitPolicy == "sleep" {
		syncConfig.WaitPolicy = framesync.WaitSleep
	}

	captureConfig := capture.DefaultConfig()
	captureConfig.Threads = c.Capture.Threads
	captureConfig.Quality = c.Capture.Quality
	captureConfig.Format = format
	captureConfig.Resolution = capture.Resolution{Width: c.Capture.Width, Height: c.Capture.Height}
	captureConfig.Naming = capture.Naming{
		Path:        c.Capture.Path,
		Prefix:      c.Capture.Prefix,
		AddNodeName: c.Capture.AddNodeName,
	}
	captureConfig.Limits = capture.Limits{Begin: c.Capture.Begin, End: c.Capture.End}

	var ext barrier.Extension
	if v.GetBool("simulate-swap-group") {
		ext = barrier.NewMockedExtension()
	}
	return cluster.Config{
		Nodes:           nodes,
		MasterAddress:   c.Cluster.MasterAddress,
		Mode:            mode,
		LocalIndex:      c.Local.Node,
		IgnoreSync:      c.Cluster.IgnoreSync,
		FirmSync:        c.Cluster.FirmSync,
		Sync:            syncConfig,
		Capture:         captureConfig,
		Extension:       ext,
		Registerer:      registry,
		MaxFrames:       v.GetUint64("frames"),
		ScreenshotEvery: v.GetUint64("screenshot-every"),
	}, nil
}

// application renders s. Only the server moves the clock forward, clients
// draw whatever state they decoded for the frame.
func application(role framesync.Role, s *scene) cluster.Application {
	app := cluster.Application{
		Draw:   s.draw,
		Pixels: s.framebuffer,
	}
	if role == framesync.Server {
		app.PreSync = s.advance
	}
	return app
}

func reportFailure(logger *zap.Logger, err error) {
	var stall *framesync.StallError
	if !errors.As(err, &stall) {
		logger.Error("render loop failed", zap.Error(err))
		return
	}
	logger.Error("cluster fell out of sync",
		zap.String("phase", string(stall.Phase)),
		zap.Duration("waited", stall.Waited),
		zap.Error(stall.Err))
	for _, p := range stall.Peers {
		logger.Error("stalled sync connection",
			zap.String("connection_id", p.ID),
			zap.Int32("send_frame", p.SendFrameCurrent),
			zap.Int32("recv_frame", p.RecvFrameCurrent),
			zap.Int32("recv_frame_previous", p.RecvFramePrevious),
			zap.Bool("updated", p.Updated),
			zap.Bool("running", p.Running))
	}
}

func run(v *viper.Viper) int {
	ctx := cli.Bootstrap()
	logger := ctx.Logger
	defer logger.Sync()

	c, err := config.Load(v, v.GetString("config"))
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 2
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	conf, err := runtimeConfig(v, c, registry)
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 2
	}
	s := newScene(conf.Capture.Resolution)
	conf.Codec = s
	conf.Decoder = s.Decode

	runtime, err := cluster.New(logger, conf)
	if err != nil {
		logger.Error("failed to join cluster", zap.Error(err))
		return 1
	}
	metricsConf, err := network.ConfigurationFromFlags(v, FLAG_NAME_METRICS)
	if err != nil {
		logger.Error("invalid metrics listener", zap.Error(err))
		return 2
	}
	if metricsConf.Enabled() {
		server := cli.ServeHTTPHealth(logger, metricsConf, registry, runtime)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	runCtx, cancel := ctx.SignalContext(context.Background())
	defer cancel()
	defer func() {
		if err := runtime.Close(); err != nil {
			logger.Warn("cluster runtime did not stop cleanly", zap.Error(err))
		}
	}()
	if err := runtime.Start(runCtx); err != nil {
		if runCtx.Err() != nil {
			return 0
		}
		logger.Error("failed to start cluster runtime", zap.Error(err))
		return 1
	}
	logger.Info("render loop started")
	err = runtime.Run(runCtx, application(runtime.Resolution().Role, s))
	if err != nil {
		reportFailure(logger, err)
		return 1
	}
	logger.Info("render loop stopped", zap.Uint64("frame_count", runtime.Frame()))
	return 0
}

func bindFlag(cmd *cobra.Command, v *viper.Viper, key, flag string) {
	v.BindPFlag(key, cmd.Flags().Lookup(flag))
}

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:     "framelock",
		Short:   "Render frames in lockstep across a cluster of display nodes",
		Version: cli.Version(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if loose, _ := cmd.Flags().GetBool("loose-sync"); loose {
				v.Set("cluster.firm_sync", false)
			}
			if code := run(v); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
	root.Flags().StringP("config", "c", "", "Read the cluster description from this file")
	v.BindPFlag("config", root.Flags().Lookup("config"))

	root.Flags().IntP("local", "l", -1, "Run every node on this computer, rendering the node with this index")
	bindFlag(root, v, "local.node", "local")
	root.Flags().BoolP("client", "", false, "In local mode, run as a client")
	bindFlag(root, v, "local.client", "client")
	root.Flags().BoolP("firm-sync", "", false, "Require every frame to be acknowledged in order")
	bindFlag(root, v, "cluster.firm_sync", "firm-sync")
	root.Flags().BoolP("loose-sync", "", false, "Only require the latest frame to be acknowledged")
	root.Flags().BoolP("ignore-sync", "", false, "Render without waiting for other nodes")
	bindFlag(root, v, "cluster.ignore_sync", "ignore-sync")
	root.Flags().DurationP("sync-timeout", "", 60*time.Second, "Give up when the cluster did not sync for this long")
	bindFlag(root, v, "sync.timeout", "sync-timeout")
	root.Flags().BoolP("print-wait-message", "", true, "Log the connections holding a frame back")
	bindFlag(root, v, "sync.print_wait_message", "print-wait-message")

	root.Flags().IntP("number-capture-threads", "", 8, "Write at most this many screenshots at once")
	bindFlag(root, v, "capture.threads", "number-capture-threads")
	root.Flags().StringP("screenshot-path", "", ".", "Write screenshots in this directory")
	bindFlag(root, v, "capture.path", "screenshot-path")
	root.Flags().StringP("screenshot-prefix", "", "", "Prefix screenshot file names with this string")
	bindFlag(root, v, "capture.prefix", "screenshot-prefix")
	root.Flags().StringP("capture-format", "", "png", "Screenshot format: "+strings.Join([]string{"png", "jpg", "tga", "bmp", "tiff"}, ", "))
	bindFlag(root, v, "capture.format", "capture-format")
	root.Flags().BoolP("add-node-name-in-screenshot", "", true, "Add the node index in screenshot file names")
	bindFlag(root, v, "capture.add_node_name", "add-node-name-in-screenshot")
	root.Flags().Uint64P("screenshot-every", "", 0, "Capture one frame out of this many (0 disables periodic captures)")
	v.BindPFlag("screenshot-every", root.Flags().Lookup("screenshot-every"))

	root.Flags().Uint64P("frames", "n", 0, "Stop after this many frames (0 runs until interrupted)")
	v.BindPFlag("frames", root.Flags().Lookup("frames"))
	root.Flags().BoolP("simulate-swap-group", "", false, "Use an in-process swap group instead of the graphics driver")
	v.BindPFlag("simulate-swap-group", root.Flags().Lookup("simulate-swap-group"))

	network.RegisterFlagsForService(root, v, FLAG_NAME_METRICS, 9100)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
