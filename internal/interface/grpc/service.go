package grpcservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ark-network/raffle/internal/config"
	interfaces "github.com/ark-network/raffle/internal/interface"
	"github.com/ark-network/raffle/internal/interface/grpc/handlers"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

type service struct {
	config     Config
	appConfig  *config.Config
	server     *http.Server
	grpcServer *grpc.Server
}

func NewService(
	svcConfig Config, appConfig *config.Config,
) (interfaces.Service, error) {
	if err := svcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}

	return &service{config: svcConfig, appConfig: appConfig}, nil
}

func (s *service) Start() error {
	appSvc := s.appConfig.AppService()
	if err := appSvc.Start(); err != nil {
		return fmt.Errorf("failed to start app service: %s", err)
	}
	log.Info("started app service")

	s.newServer()

	// nolint:all
	go s.server.ListenAndServe()
	log.Infof("started listening at %s", s.config.address())

	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Event streams are left open until the timeout expires.
	//nolint:all
	s.server.Shutdown(ctx)
	s.grpcServer.Stop()
	log.Info("stopped server")

	s.appConfig.AppService().Stop()
	log.Info("stopped app service")
}

func (s *service) newServer() {
	grpcServer := grpc.NewServer(grpc.Creds(insecure.NewCredentials()))
	grpchealth.RegisterHealthServer(grpcServer, handlers.NewHealthHandler())

	httpHandler := handlers.NewHandler(
		s.appConfig.AppService(),
		s.appConfig.FulfillerToken, s.appConfig.TrustedFulfiller(),
	)

	handler := router(grpcServer, httpHandler)
	mux := http.NewServeMux()
	mux.Handle("/", handler)

	s.grpcServer = grpcServer
	s.server = &http.Server{
		Addr:    s.config.address(),
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}
}

func router(
	grpcServer *grpc.Server, httpHandler http.Handler,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isOptionRequest(r) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Add("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			return
		}

		if isGrpcRequest(r) {
			grpcServer.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Add("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		httpHandler.ServeHTTP(w, r)
	})
}

func isOptionRequest(req *http.Request) bool {
	return req.Method == http.MethodOptions
}

func isGrpcRequest(req *http.Request) bool {
	return req.ProtoMajor == 2 &&
		strings.HasPrefix(req.Header.Get("Content-Type"), "application/grpc")
}
