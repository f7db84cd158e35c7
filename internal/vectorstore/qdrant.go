package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crosve/Csphere/internal/vecmath"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("csphere.vectorstore.qdrant")

// pointNamespace derives stable point IDs for folder IDs that are not UUIDs.
var pointNamespace = uuid.MustParse("6f1c1f0e-8a47-4c53-9d0e-2b6b1f3a9c11")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	// Default: "localhost"
	Host string

	// Port is the gRPC port, not the REST one.
	// Default: 6334
	Port int

	APIKey string
	UseTLS bool

	// Collection holds every folder entry.
	Collection string

	// Dimension is the profile vector length.
	Dimension int

	// MaxRetries for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per attempt.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the gRPC message cap in bytes.
	// Default: 16MB
	MaxMessageSize int

	// CircuitBreakerThreshold is the failure count that opens the circuit.
	// Default: 5
	CircuitBreakerThreshold int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "csphere_folders"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 16 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// IsTransientError reports whether err is worth retrying: unavailability,
// deadlines, aborts and resource exhaustion. Anything else is permanent.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// circuitBreaker sheds calls after threshold consecutive failures until
// resetAfter has elapsed since the last one.
type circuitBreaker struct {
	threshold  int
	resetAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	failures int
	lastFail time.Time
}

func newCircuitBreaker(threshold int) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetAfter: 30 * time.Second, now: time.Now}
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFail = b.now()
	if b.failures >= b.threshold {
		CircuitOpen.Set(1)
	}
}

func (b *circuitBreaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	CircuitOpen.Set(0)
}

func (b *circuitBreaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return false
	}
	if b.now().Sub(b.lastFail) > b.resetAfter {
		b.failures = 0
		CircuitOpen.Set(0)
		return false
	}
	return true
}

// QdrantIndex implements FolderIndex on a remote Qdrant collection.
type QdrantIndex struct {
	client  *qdrant.Client
	config  QdrantConfig
	logger  *zap.Logger
	breaker *circuitBreaker
}

var _ FolderIndex = (*QdrantIndex)(nil)

// NewQdrantIndex connects, health-checks and ensures the collection exists.
func NewQdrantIndex(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	x := &QdrantIndex{
		client:  client,
		config:  config,
		logger:  logger,
		breaker: newCircuitBreaker(config.CircuitBreakerThreshold),
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := x.Health(hctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := x.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant folder index ready",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)
	return x, nil
}

// Dimension returns the configured vector length.
func (x *QdrantIndex) Dimension() int { return x.config.Dimension }

// Health pings the server.
func (x *QdrantIndex) Health(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Health")
	defer span.End()

	if _, err := x.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

func (x *QdrantIndex) ensureCollection(ctx context.Context) error {
	var exists bool
	err := x.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = x.client.CollectionExists(ctx, x.config.Collection)
		return err
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", x.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = x.retryOperation(ctx, "create_collection", func() error {
		return x.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: x.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(x.config.Dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", x.config.Collection, err)
	}
	x.logger.Info("created qdrant collection", zap.String("collection", x.config.Collection))
	return nil
}

// retryOperation retries op with exponential backoff while the error is
// transient and the circuit is closed.
func (x *QdrantIndex) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := x.config.RetryBackoff

	for attempt := 0; attempt <= x.config.MaxRetries; attempt++ {
		if x.breaker.isOpen() {
			return fmt.Errorf("%s: %w", name, ErrCircuitOpen)
		}
		err := op()
		if err == nil {
			x.breaker.reset()
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		x.breaker.recordFailure()

		if attempt == x.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, x.config.MaxRetries, err)
		}
		x.logger.Debug("retrying qdrant operation",
			zap.String("op", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// pointID maps a folder ID onto a Qdrant point ID. Qdrant accepts UUIDs or
// integers only, so other IDs are hashed into a stable UUID.
func pointID(folderID string) string {
	if id, err := uuid.Parse(folderID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(folderID)).String()
}

// Upsert stores e, replacing any previous point for the folder.
func (x *QdrantIndex) Upsert(ctx context.Context, e Entry) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()
	defer observe("qdrant", "upsert", time.Now(), &err)
	span.SetAttributes(attribute.String("folder.id", e.FolderID))

	if err = checkDimension(x, e.Profile); err != nil {
		return err
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(e.FolderID)),
		Vectors: qdrant.NewVectors(vecmath.ToFloat32(e.Profile)...),
		Payload: qdrant.NewValueMap(map[string]any{
			metaFolderID:  e.FolderID,
			metaOwnerID:   e.OwnerID,
			metaBucketing: e.BucketingEnabled,
		}),
	}
	err = x.retryOperation(ctx, "upsert", func() error {
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: x.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting folder %s: %w", e.FolderID, err)
	}
	return nil
}

// Delete removes the folder's point.
func (x *QdrantIndex) Delete(ctx context.Context, folderID string) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Delete")
	defer span.End()
	defer observe("qdrant", "delete", time.Now(), &err)

	err = x.retryOperation(ctx, "delete", func() error {
		_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: x.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointID(folderID))),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting folder %s: %w", folderID, err)
	}
	return nil
}

// Nearest runs a filtered cosine query.
func (x *QdrantIndex) Nearest(ctx context.Context, ownerID string, query []float64, limit int) (out []Neighbor, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Nearest")
	defer span.End()
	defer observe("qdrant", "nearest", time.Now(), &err)
	span.SetAttributes(attribute.Int("limit", limit))

	if err = checkDimension(x, query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeyword(metaOwnerID, ownerID),
			qdrant.NewMatchBool(metaBucketing, true),
		},
	}
	vector := vecmath.ToFloat32(query)

	var points []*qdrant.ScoredPoint
	err = x.retryOperation(ctx, "query", func() error {
		res, err := x.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: x.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", x.config.Collection, err)
	}

	out = make([]Neighbor, 0, len(points))
	for _, p := range points {
		id := p.GetPayload()[metaFolderID].GetStringValue()
		if id == "" {
			continue
		}
		out = append(out, Neighbor{FolderID: id, Similarity: float64(p.GetScore())})
	}
	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// Close closes the gRPC connection.
func (x *QdrantIndex) Close() error {
	if x.client != nil {
		return x.client.Close()
	}
	return nil
}
