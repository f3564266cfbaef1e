package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	RetrievalQueries   metric.Int64Counter
	EmbeddingDuration  metric.Float64Histogram
	IngestDuration     metric.Float64Histogram
	VectorStoreOps     metric.Int64Counter
	ProxyRequests      metric.Int64Counter
	QueuePromotions    metric.Int64Counter
	DatabaseOperations metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("llm-gateway-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retrievalQueries, err := meter.Int64Counter(
		"retrieval.queries.total",
		metric.WithDescription("Total retrieval queries by mode"),
	)
	if err != nil {
		return nil, err
	}

	embeddingDuration, err := meter.Float64Histogram(
		"embedding.duration",
		metric.WithDescription("Embedding call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	vectorStoreOps, err := meter.Int64Counter(
		"vectorstore.operations.total",
		metric.WithDescription("Total vector store operations"),
	)
	if err != nil {
		return nil, err
	}

	proxyRequests, err := meter.Int64Counter(
		"proxy.requests.total",
		metric.WithDescription("Total upstream provider proxy requests"),
	)
	if err != nil {
		return nil, err
	}

	queuePromotions, err := meter.Int64Counter(
		"waitroom.promotions.total",
		metric.WithDescription("Waiting users promoted to draft"),
	)
	if err != nil {
		return nil, err
	}

	databaseOperations, err := meter.Int64Counter(
		"database.operations.total",
		metric.WithDescription("Total database operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:     requestCounter,
		RequestDuration:    requestDuration,
		RetrievalQueries:   retrievalQueries,
		EmbeddingDuration:  embeddingDuration,
		IngestDuration:     ingestDuration,
		VectorStoreOps:     vectorStoreOps,
		ProxyRequests:      proxyRequests,
		QueuePromotions:    queuePromotions,
		DatabaseOperations: databaseOperations,
	}, nil
}

// RecordRetrievalQuery records a retrieval query by mode ("vector", "hybrid")
func (m *Metrics) RecordRetrievalQuery(mode string, collections int) {
	attrs := []attribute.KeyValue{
		attribute.String("retrieval.mode", mode),
		attribute.Int("retrieval.collections", collections),
	}

	m.RetrievalQueries.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordEmbedding records an embedding call duration
func (m *Metrics) RecordEmbedding(engine, model string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("embedding.engine", engine),
		attribute.String("embedding.model", model),
	}

	m.EmbeddingDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngest records a document ingestion duration
func (m *Metrics) RecordIngest(duration float64, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("ingest.status", status),
	}

	m.IngestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordVectorStoreOp records a vector store operation
func (m *Metrics) RecordVectorStoreOp(dialect, operation string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("vectorstore.dialect", dialect),
		attribute.String("vectorstore.operation", operation),
		attribute.Bool("vectorstore.success", success),
	}

	m.VectorStoreOps.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordProxyRequest records a provider proxy request
func (m *Metrics) RecordProxyRequest(provider, endpoint string, status int) {
	attrs := []attribute.KeyValue{
		attribute.String("proxy.provider", provider),
		attribute.String("proxy.endpoint", endpoint),
		attribute.Int("proxy.status", status),
	}

	m.ProxyRequests.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordDatabaseOperation records database operation metrics
func (m *Metrics) RecordDatabaseOperation(operation, collection string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.collection", collection),
		attribute.Bool("db.success", success),
	}

	m.DatabaseOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
