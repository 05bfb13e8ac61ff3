package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/roomlink/internal/server"
	"github.com/cory-johannsen/roomlink/internal/transport/grpcconn"
	"github.com/cory-johannsen/roomlink/internal/transport/loopback"
	"github.com/cory-johannsen/roomlink/internal/transport/wsconn"
)

var (
	wsAddr      string
	grpcAddr    string
	metricsAddr string
	seedDemo    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an in-memory room service for local development",
	Long: `Serves an in-memory room service over websocket and gRPC so that
roomctl and SDK clients can be exercised without the hosted service. An empty
address disables that listener.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if wsAddr == "" && grpcAddr == "" {
			return fmt.Errorf("at least one of --ws-addr or --grpc-addr is required")
		}
		start := time.Now()

		svc := loopback.NewService(logger.Named("rooms"))
		if seedDemo {
			svc.Seed(demoRooms()...)
		}

		lifecycle := server.NewLifecycle(logger)

		if wsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/ws", wsconn.NewServer(svc, logger.Named("ws")))
			lifecycle.Add("websocket", &server.HTTPService{
				Server: &http.Server{Addr: wsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
			})
		}

		if grpcAddr != "" {
			gs := grpc.NewServer()
			grpcconn.Register(gs, svc, logger.Named("grpc"))
			lifecycle.Add("grpc", &server.FuncService{
				StartFn: func() error {
					lis, err := net.Listen("tcp", grpcAddr)
					if err != nil {
						return fmt.Errorf("listening on %s: %w", grpcAddr, err)
					}
					if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
						return err
					}
					return nil
				},
				StopFn: gs.GracefulStop,
			})
		}

		if metricsAddr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			lifecycle.Add("metrics", &server.HTTPService{
				Server: &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
			})
		}

		logger.Info("room service initialized",
			zap.Duration("startup", time.Since(start)),
			zap.String("ws_addr", wsAddr),
			zap.String("grpc_addr", grpcAddr),
			zap.String("metrics_addr", metricsAddr),
			zap.Int("rooms", len(svc.Rooms())),
		)
		return lifecycle.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&wsAddr, "ws-addr", "127.0.0.1:7350", "websocket listen address (path /ws)")
	serveCmd.Flags().StringVar(&grpcAddr, "grpc-addr", "127.0.0.1:7349", "gRPC listen address")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus listen address (path /metrics); empty disables")
	serveCmd.Flags().BoolVar(&seedDemo, "demo", true, "seed demo rooms")
}
