package telemetry

import (
	"os"

	"github.com/crosve/Csphere/internal/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Resource attribute keys describing a csphere process.
const (
	AttrRole              = attribute.Key("csphere.role")
	AttrIndexProvider     = attribute.Key("csphere.index.provider")
	AttrEmbeddingProvider = attribute.Key("csphere.embeddings.provider")
	AttrStream            = attribute.Key("csphere.nats.stream")
	AttrSubjectPrefix     = attribute.Key("csphere.nats.subject_prefix")
)

// Process describes what this csphere process runs, so traces from the
// queue worker, the ops API and one-shot CLI commands can be told apart
// on the collector side.
type Process struct {
	// Role is the command being run: serve, reindex, explain, profiles...
	Role              string
	IndexProvider     string
	EmbeddingProvider string
	Stream            string
	SubjectPrefix     string
}

// ProcessFrom fills a Process from the loaded configuration.
func ProcessFrom(role string, cfg *config.Config) Process {
	return Process{
		Role:              role,
		IndexProvider:     cfg.VectorStore.Provider,
		EmbeddingProvider: cfg.Embeddings.Provider,
		Stream:            cfg.NATS.Stream,
		SubjectPrefix:     cfg.NATS.SubjectPrefix,
	}
}

func (p Process) attributes() []attribute.KeyValue {
	var kvs []attribute.KeyValue
	add := func(k attribute.Key, v string) {
		if v != "" {
			kvs = append(kvs, k.String(v))
		}
	}
	add(AttrRole, p.Role)
	add(AttrIndexProvider, p.IndexProvider)
	add(AttrEmbeddingProvider, p.EmbeddingProvider)
	add(AttrStream, p.Stream)
	add(AttrSubjectPrefix, p.SubjectPrefix)
	return kvs
}

// newResource builds a standalone resource; merging with resource.Default
// would mix semconv schema URLs.
func newResource(cfg *Config, p Process) *resource.Resource {
	kvs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if host, err := os.Hostname(); err == nil {
		kvs = append(kvs, semconv.HostName(host))
	}
	kvs = append(kvs, p.attributes()...)
	return resource.NewWithAttributes(semconv.SchemaURL, kvs...)
}
