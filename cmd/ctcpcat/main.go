// Command ctcpcat pipes stdin to a remote peer over a cTCP connection
// carried on UDP, printing an upload progress bar to stderr. Bytes the
// peer sends back are written to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/soypat/ctcp"
)

type udpEndpoint struct{ conn *net.UDPConn }

func (e udpEndpoint) Send(datagram []byte) (int, error) { return e.conn.Write(datagram) }
func (e udpEndpoint) Close() error                      { return e.conn.Close() }

type stdoutSink struct{}

func (stdoutSink) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil // FIN from the peer: nothing further to flush
	}
	return os.Stdout.Write(buf)
}

func (stdoutSink) BufferSpace() int { return 1 << 20 }

func main() {
	addr := flag.String("addr", "", "remote host:port to send stdin to over cTCP/UDP")
	quiet := flag.Bool("quiet", false, "suppress the upload progress bar")
	flag.Parse()
	if *addr == "" {
		fmt.Fprintln(os.Stderr, "ctcpcat: -addr is required")
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	raddr, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		log.Error("ctcpcat: resolve failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	udpConn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		log.Error("ctcpcat: dial failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer udpConn.Close()

	in := newStdinInput(os.Stdin)
	cfg := ctcp.DefaultConfig()
	conn, err := ctcp.NewConnection(cfg, udpEndpoint{udpConn}, in, stdoutSink{}, ctcp.NewSystemClock(), log)
	if err != nil {
		log.Error("ctcpcat: failed to create connection", slog.String("err", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go readLoop(ctx, udpConn, conn, log)

	var bar *progressbar.ProgressBar
	if !*quiet {
		bar = progressbar.DefaultBytes(-1, "uploading")
	}

	clock := ctcp.NewSystemClock()
	ticker := time.NewTicker(cfg.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.OnReadable(); err != nil {
				log.Debug("ctcpcat: OnReadable error", slog.String("err", err.Error()))
			}
			conn.MakeProgress(clock.NowMillis())
			if bar != nil {
				acked := in.TotalRead() - int64(conn.PendingBytes())
				bar.Set64(acked)
			}
			if conn.EOFAcked() || conn.Destroyed() {
				if bar != nil {
					bar.Finish()
				}
				return
			}
		}
	}
}

func readLoop(ctx context.Context, udpConn *net.UDPConn, conn *ctcp.Connection, log *slog.Logger) {
	buf := make([]byte, 65535)
	for {
		if ctx.Err() != nil {
			return
		}
		udpConn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := udpConn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		if err := conn.OnSegment(buf, n); err != nil {
			log.Debug("ctcpcat: OnSegment error", slog.String("err", err.Error()))
		}
	}
}
