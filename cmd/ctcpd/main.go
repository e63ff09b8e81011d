// Command ctcpd is a small daemon that terminates cTCP connections over
// UDP, one connection per source address, and writes the delivered byte
// stream to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"golang.org/x/sys/unix"

	"github.com/soypat/ctcp"
	"github.com/soypat/ctcp/internal"
	"github.com/soypat/ctcp/pkg/config"
	"github.com/soypat/ctcp/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "ctcpd.yml", "path to the daemon's YAML configuration file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: internal.LevelTrace}))

	file, cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("ctcpd: failed to load configuration", slog.String("err", err.Error()))
		os.Exit(1)
	}

	conn, err := listenUDPReusable(file.ListenAddr)
	if err != nil {
		log.Error("ctcpd: failed to bind listen socket", slog.String("addr", file.ListenAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()
	log.Info("ctcpd: listening", slog.String("addr", file.ListenAddr))

	collector := metrics.NewCollector(prometheus.Labels{"daemon": "ctcpd"})
	prometheus.MustRegister(collector)
	go serveMetrics(file.MetricsAddr, log)

	d := &daemon{
		cfg:       cfg,
		conn:      conn,
		registry:  ctcp.NewRegistry(log),
		collector: collector,
		peers:     make(map[string]xid.ID),
		log:       log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go d.tickLoop(ctx)
	d.readLoop(ctx)
}

// listenUDPReusable binds addr with SO_REUSEADDR set, so ctcpd can be
// restarted without waiting out a lingering socket in TIME_WAIT at the
// kernel level.
func listenUDPReusable(addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, err
	}
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("ctcpd: unexpected packet conn type %T", pc)
	}
	return udpConn, nil
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("ctcpd: serving metrics", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("ctcpd: metrics server exited", slog.String("err", err.Error()))
	}
}

// daemon demultiplexes inbound datagrams by source address, lazily
// creating one ctcp.Connection per peer the first time it's heard from.
type daemon struct {
	cfg       ctcp.Config
	conn      *net.UDPConn
	registry  *ctcp.Registry
	collector *metrics.Collector
	log       *slog.Logger

	mu    sync.Mutex
	peers map[string]xid.ID
}

func (d *daemon) readLoop(ctx context.Context) {
	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return
		}
		d.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, peer, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			d.log.Warn("ctcpd: read failed", slog.String("err", err.Error()))
			continue
		}
		id := d.connectionFor(peer)
		if err := d.registry.Dispatch(id, buf, n); err != nil {
			d.log.Debug("ctcpd: dispatch error", slog.String("peer", peer.String()), slog.String("err", err.Error()))
		}
	}
}

func (d *daemon) connectionFor(peer *net.UDPAddr) xid.ID {
	key := peer.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.peers[key]; ok {
		return id
	}
	c, err := ctcp.NewConnection(d.cfg, &udpEndpoint{conn: d.conn, peer: peer}, noInput{}, newStdoutSink(), ctcp.NewSystemClock(), d.log)
	if err != nil {
		d.log.Error("ctcpd: failed to create connection", slog.String("err", err.Error()))
		return xid.ID{}
	}
	id := d.registry.Register(c)
	if peerAddr4 := peer.IP.To4(); peerAddr4 != nil {
		d.log.Info("ctcpd: new peer", internal.SlogAddr4("peer", (*[4]byte)(peerAddr4)), slog.String("conn", id.String()))
	}
	d.collector.Add(id, c)
	d.peers[key] = id
	return id
}

func (d *daemon) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.TickPeriod)
	defer ticker.Stop()
	clock := ctcp.NewSystemClock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped := d.registry.Tick(clock.NowMillis())
			d.prune(reaped)
		}
	}
}

// prune removes reaped connection IDs from the peer-address map and the
// metrics collector, the bookkeeping the registry itself doesn't own.
func (d *daemon) prune(reaped []xid.ID) {
	if len(reaped) == 0 {
		return
	}
	dead := make(map[xid.ID]bool, len(reaped))
	for _, id := range reaped {
		dead[id] = true
		d.collector.Remove(id)
	}
	d.mu.Lock()
	for addr, id := range d.peers {
		if dead[id] {
			delete(d.peers, addr)
		}
	}
	d.mu.Unlock()
}
