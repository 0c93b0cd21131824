package services

import (
	"context"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/norun9/shopstate/kvstore"
	"github.com/norun9/shopstate/kvstore/kvstoretest"
)

func TestHealthCheck(t *testing.T) {
	faulty := kvstoretest.NewFaulty(kvstore.NewLocalKVStore(quietLogger()))
	svc := NewHealthCheckService(faulty, quietLogger())

	resp, err := svc.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.Status)
	}

	faulty.FailAll()
	resp, err = svc.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.Status)
	}
}
