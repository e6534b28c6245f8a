package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/linkscope/linkscope/agent/internal/store"
	"github.com/linkscope/linkscope/pkg/types"
)

// Service is the health service name that tracks connectivity.
const Service = "linkscope.Network"

// Reporter mirrors the store's connectivity into a gRPC health server.
type Reporter struct {
	store  *store.Store
	server *grpchealth.Server
}

// New creates a Reporter seeded from the current snapshot.
func New(st *store.Store) *Reporter {
	r := &Reporter{store: st, server: grpchealth.NewServer()}
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	r.apply(st.Snapshot())
	return r
}

// Register adds the health service to s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Run follows store changes until ctx is cancelled, then marks every
// service NOT_SERVING.
func (r *Reporter) Run(ctx context.Context) {
	updates, unsubscribe := r.store.Subscribe()
	defer unsubscribe()
	defer r.server.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			r.apply(snap)
		}
	}
}

func (r *Reporter) apply(snap types.NetworkSnapshot) {
	r.server.SetServingStatus(Service, servingStatus(snap))
}

// servingStatus maps a snapshot onto the health protocol.
func servingStatus(snap types.NetworkSnapshot) healthpb.HealthCheckResponse_ServingStatus {
	switch {
	case snap.LastUpdated == nil && !snap.IsOnline:
		return healthpb.HealthCheckResponse_UNKNOWN
	case snap.IsOnline && snap.Status != types.StatusOffline:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

// LoggingInterceptor logs every unary call at debug level, and failures at
// warn.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			slog.Warn("health: call failed",
				"method", info.FullMethod,
				"code", status.Code(err).String(),
				"err", err,
			)
			return resp, err
		}
		slog.Debug("health: call",
			"method", info.FullMethod,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, nil
	}
}
