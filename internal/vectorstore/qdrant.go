package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadIDField stores the caller-supplied ID. Qdrant point IDs must be a
// UUID or an unsigned integer, so non-UUID IDs are rehashed deterministically
// and the original is kept in the payload for round-tripping.
const payloadIDField = "_original_id"

type qdrantStore struct {
	client *qdrant.Client
	metric string

	mu         sync.Mutex
	collection map[string]bool
}

// NewQdrant dials a Qdrant instance at dsn (e.g. "http://localhost:6334",
// optionally with an "?api_key=..." query parameter).
func NewQdrant(dsn, metric string) (Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &qdrantStore{
		client:     client,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
		collection: make(map[string]bool),
	}, nil
}

func (q *qdrantStore) Close() error { return q.client.Close() }

func (q *qdrantStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.collection[collection] {
		return nil
	}
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		q.collection[collection] = true
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("qdrant requires dimension > 0 to create collection %q", collection)
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %q: %w", collection, err)
	}
	q.collection[collection] = true
	return nil
}

func (q *qdrantStore) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		pointID, metadata := toPointID(r.ID)
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		points = append(points, &qdrant.PointStruct{
			Id:      pointID,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(metadata),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert into %q: %w", collection, err)
	}
	return nil
}

func (q *qdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pid, _ := toPointID(id)
		pointIDs = append(pointIDs, pid)
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete from %q: %w", collection, err)
	}
	return nil
}

func (q *qdrantStore) Query(ctx context.Context, collection string, vector []float32, k int, where Where) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         toQdrantFilter(where),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query on %q: %w", collection, err)
	}
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id, metadata := fromPayload(hit.Id, hit.Payload)
		results = append(results, Result{ID: id, Score: float64(hit.Score), Metadata: metadata})
	}
	return results, nil
}

func (q *qdrantStore) Get(ctx context.Context, collection string, where Where) ([]Record, error) {
	hits, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         toQdrantFilter(where),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll on %q: %w", collection, err)
	}
	records := make([]Record, 0, len(hits))
	for _, hit := range hits {
		id, metadata := fromPayload(hit.Id, hit.Payload)
		var vec []float32
		if dense := hit.GetVectors().GetVector().GetDense(); dense != nil {
			vec = dense.GetData()
		}
		records = append(records, Record{ID: id, Vector: vec, Metadata: metadata})
	}
	return records, nil
}

func toPointID(id string) (*qdrant.PointId, map[string]any) {
	uuidStr := id
	metadata := map[string]any{}
	if _, err := uuid.Parse(id); err != nil {
		uuidStr = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
		metadata[payloadIDField] = id
	}
	return qdrant.NewIDUUID(uuidStr), metadata
}

func fromPayload(pointID *qdrant.PointId, payload map[string]*qdrant.Value) (string, map[string]any) {
	uuidStr := pointID.GetUuid()
	if uuidStr == "" {
		uuidStr = pointID.String()
	}
	metadata := make(map[string]any, len(payload))
	original := ""
	for k, v := range payload {
		if k == payloadIDField {
			original = v.GetStringValue()
			continue
		}
		metadata[k] = valueToAny(v)
	}
	id := original
	if id == "" {
		id = uuidStr
	}
	return id, metadata
}

func valueToAny(v *qdrant.Value) any {
	switch {
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetIntegerValue() != 0:
		return v.GetIntegerValue()
	case v.GetDoubleValue() != 0:
		return v.GetDoubleValue()
	case v.GetBoolValue():
		return true
	default:
		return v.GetStringValue()
	}
}

// toQdrantFilter translates the top-level scalar equality clauses of where
// into a qdrant.Filter of Match conditions. $and/$or and operator clauses
// ($ne, $gt, $in, ...) are left out of the filter, and neither Query nor Get
// applies them afterwards, so they have no effect on qdrant results.
func toQdrantFilter(where Where) *qdrant.Filter {
	if len(where) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(where))
	for k, v := range where {
		if k == "$and" || k == "$or" {
			continue
		}
		if _, nested := v.(Where); nested {
			continue
		}
		must = append(must, qdrant.NewMatch(k, fmt.Sprint(v)))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}
