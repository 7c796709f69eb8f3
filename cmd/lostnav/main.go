// Command lostnav estimates how well a robot's laser scans agree with a
// known occupancy map. It reads map, scan, transform and pose messages from
// a UDP, serial or pcap feed, publishes the lost rate of every scan and
// serves status pages, charts and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/lostnav/internal/config"
	"github.com/banshee-data/lostnav/internal/db"
	"github.com/banshee-data/lostnav/internal/feed"
	"github.com/banshee-data/lostnav/internal/lost"
	"github.com/banshee-data/lostnav/internal/lost/l2frames"
	"github.com/banshee-data/lostnav/internal/lost/l3grid"
	"github.com/banshee-data/lostnav/internal/lost/l4consistency"
	"github.com/banshee-data/lostnav/internal/monitor"
	"github.com/banshee-data/lostnav/internal/serialmux"
	"github.com/banshee-data/lostnav/internal/timeutil"
	"github.com/banshee-data/lostnav/internal/version"
	"github.com/banshee-data/lostnav/internal/visualiser"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON estimator config (default: built-in defaults)")
	mapFile     = flag.String("map", "", "Path to a map_server YAML file, reloaded when it changes")
	listen      = flag.String("listen", ":8082", "HTTP listen address for status, charts and metrics")
	udpAddress  = flag.String("udp-addr", ":9870", "UDP address for the JSON feed (empty disables)")
	rcvBuf      = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes (default 4MB)")
	logInterval = flag.Int("log-interval", 10, "Feed statistics logging interval in seconds")
	serialPort  = flag.String("serial", "", "Serial port carrying the JSON feed, one message per line")
	baudRate    = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	pcapFile    = flag.String("pcap", "", "Replay the feed from a pcap/pcapng capture instead of listening")
	pcapPort    = flag.Int("pcap-port", 9870, "UDP destination port to select from the capture (0 for any)")
	pcapSpeed   = flag.Float64("pcap-speed", 1, "Replay speed multiplier (0 replays as fast as possible)")
	grpcListen  = flag.String("grpc-listen", "localhost:50061", "Visualiser gRPC listen address (empty disables)")
	dbFile      = flag.String("db", "lostnav.db", "Path to the SQLite results database (empty disables)")
	debugLog    = flag.Bool("debug", false, "Enable the diagnostic log stream")
	traceLog    = flag.Bool("trace", false, "Enable the per-scan trace log stream")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("lostnav"))
		return
	}

	writers := lost.LogWriters{Ops: os.Stderr}
	if *debugLog {
		writers.Diag = os.Stderr
	}
	if *traceLog {
		writers.Trace = os.Stderr
	}
	lost.SetLogWriters(writers)

	cfg := config.EmptyLostConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadLostConfig(*configFile); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *mapFile != "" && !l3grid.IsMapFile(*mapFile) {
		log.Fatalf("map file must be a .yaml or .yml map_server description, got %q", *mapFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("lostnav: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func run(ctx context.Context, cfg *config.LostConfig) error {
	mapFrame := cfg.GetMapFrame()

	buffer := l2frames.NewBuffer(cfg.GetTransformCache(), timeutil.RealClock{})
	for _, st := range cfg.StaticTransforms {
		if err := buffer.Set(st.Transform()); err != nil {
			return fmt.Errorf("static transform %s <- %s: %w", st.Parent, st.Child, err)
		}
	}
	transformer := l2frames.NewTransformer(buffer, cfg.TransformerConfig())
	agg := l4consistency.NewAggregator(transformer, l4consistency.Config{
		OccupiedThreshold: cfg.GetOccupiedThreshold(),
	})

	history := monitor.NewHistory(cfg.GetHistorySize())
	agg.AddSink(history)
	agg.AddSink(l4consistency.SinkFunc(func(_ context.Context, r *lost.Result) error {
		log.Printf("scan %s: %d/%d points on occupied cells, lost rate %.1f%%",
			r.ScanStamp.Format(time.RFC3339Nano), r.OccupiedHits, r.Total, r.LostRate)
		return nil
	}))

	var est feed.Estimator = agg
	var adminRoutes []func(*http.ServeMux)
	wsCfg := monitor.WebServerConfig{
		Address:           *listen,
		Estimator:         agg,
		History:           history,
		Transforms:        buffer.Edges,
		OccupiedThreshold: cfg.GetOccupiedThreshold(),
	}

	if *dbFile != "" {
		store, err := db.Open(*dbFile)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		results, err := store.StartRun(ctx, version.Version, cfg)
		if err != nil {
			return err
		}
		agg.AddSink(results)
		est = &recordingEstimator{Estimator: agg, store: results}
		wsCfg.Runs = store
		wsCfg.CurrentRun = results.RunID()
		adminRoutes = append(adminRoutes, func(mux *http.ServeMux) {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		})
	}

	var pub *visualiser.Publisher
	if *grpcListen != "" {
		vcfg := visualiser.DefaultConfig()
		vcfg.ListenAddr = *grpcListen
		pub = visualiser.NewPublisher(vcfg)
		if err := pub.Start(); err != nil {
			return fmt.Errorf("failed to start visualiser: %w", err)
		}
		defer pub.Stop()
		agg.AddSink(pub)
	}

	nodeOpts := []feed.NodeOption{
		feed.WithMapLayout(cfg.GetMapLayout()),
		feed.WithScanQueue(cfg.GetScanQueue()),
	}
	if *pcapFile != "" {
		// Replays compute every recorded scan.
		nodeOpts = append(nodeOpts, feed.WithBlockingQueue())
	}
	node := feed.NewNode(buffer, est, nodeOpts...)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 8)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.Printf("%s stopped: %v", name, err)
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
				return
			}
			log.Printf("%s routine terminated", name)
		}()
	}

	spawn("node", node.Run)

	if *mapFile != "" {
		spawn("map watcher", func(ctx context.Context) error {
			return l3grid.WatchMap(ctx, *mapFile, mapFrame, func(g *lost.OccupancyGrid) {
				if err := est.UpdateMap(g); err != nil {
					log.Printf("map %s rejected: %v", *mapFile, err)
				}
			})
		})
	}

	switch {
	case *pcapFile != "":
		spawn("pcap replay", func(ctx context.Context) error {
			stats, err := feed.ReplayPCAP(ctx, *pcapFile, feed.ReplayConfig{UDPPort: *pcapPort, Speed: *pcapSpeed}, node)
			log.Printf("pcap replay: %d packets, %d payloads, %d rejected in %s",
				stats.Packets, stats.Payloads, stats.Rejected, stats.Elapsed)
			return err
		})
	case *udpAddress != "":
		listener := feed.NewUDPListener(feed.UDPListenerConfig{
			Address:     *udpAddress,
			RcvBuf:      *rcvBuf,
			LogInterval: time.Duration(*logInterval) * time.Second,
			Handler:     node,
			Clock:       timeutil.RealClock{},
		})
		spawn("udp listener", listener.Start)
	}

	if *serialPort != "" {
		mux, err := serialmux.Open(*serialPort, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to open serial port: %w", err)
		}
		defer mux.Close()
		adminRoutes = append(adminRoutes, mux.AttachAdminRoutes)
		spawn("serial monitor", mux.Monitor)
		spawn("serial feed", func(ctx context.Context) error {
			return feed.ServeLines(ctx, mux, node)
		})
	}

	wsCfg.NodeStats = node.Stats
	wsCfg.AdminRoutes = adminRoutes
	if pub != nil {
		wsCfg.StreamStats = pub.Stats
	}
	ws := monitor.NewWebServer(wsCfg)
	spawn("http server", ws.Start)

	<-ctx.Done()
	wg.Wait()
	close(errCh)
	return errors.Join(collect(errCh)...)
}

func collect(errCh <-chan error) []error {
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}

// recordingEstimator notes every map offered to the estimator in the
// results database.
type recordingEstimator struct {
	feed.Estimator
	store *db.ResultStore
}

func (r *recordingEstimator) UpdateMap(g *lost.OccupancyGrid) error {
	err := r.Estimator.UpdateMap(g)
	if g != nil {
		if dbErr := r.store.RecordMapUpdate(context.Background(), g, err); dbErr != nil {
			log.Printf("failed to record map update: %v", dbErr)
		}
	}
	return err
}
