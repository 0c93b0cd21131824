// shopstate/services/health_service.go

package services

import (
	"context"

	"github.com/sirupsen/logrus"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/norun9/shopstate/kvstore"
)

// HealthCheckService implements the gRPC health check on top of the store's Ping.
type HealthCheckService struct {
	store kvstore.IKVStore
	log   logrus.FieldLogger
	healthpb.UnimplementedHealthServer
}

// NewHealthCheckService constructor.
func NewHealthCheckService(store kvstore.IKVStore, log logrus.FieldLogger) *HealthCheckService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HealthCheckService{store: store, log: log}
}

// Check RPC: SERVING while the store answers Ping.
func (h *HealthCheckService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if h.store.Ping(ctx) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	h.log.Warn("HealthCheckService: store ping failed")
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
}
