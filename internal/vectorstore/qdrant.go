package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	qdrantpb "github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/karthik-sk/codesearch-core/internal/errs"
	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// QdrantStore implements Store against a real Qdrant deployment over gRPC.
type QdrantStore struct {
	conn        *grpc.ClientConn
	collections qdrantpb.CollectionsClient
	points      qdrantpb.PointsClient
	maxAttempts int
}

// Dial opens a gRPC connection to addr (host:port of Qdrant's gRPC port,
// default 6334) and returns a ready-to-use QdrantStore.
func Dial(ctx context.Context, addr string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errs.New(errs.KindVectorTransport, "dial qdrant", err)
	}
	return &QdrantStore{
		conn:        conn,
		collections: qdrantpb.NewCollectionsClient(conn),
		points:      qdrantpb.NewPointsClient(conn),
		maxAttempts: 3,
	}, nil
}

func (s *QdrantStore) Close() error { return s.conn.Close() }

func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	resp, err := s.collections.CollectionExists(ctx, &qdrantpb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, errs.New(errs.KindVectorTransport, "collection_exists", err)
	}
	return resp.GetResult().GetExists(), nil
}

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dim int, metric Metric) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		info, err := s.collections.Get(ctx, &qdrantpb.GetCollectionInfoRequest{CollectionName: name})
		if err != nil {
			return errs.New(errs.KindVectorTransport, "get collection info", err)
		}
		existingDim := int(info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if existingDim != dim {
			return &DimensionMismatchError{Collection: name, Existing: existingDim, Requested: dim}
		}
		return nil
	}

	_, err = s.collections.Create(ctx, &qdrantpb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrantpb.VectorsConfig{
			Config: &qdrantpb.VectorsConfig_Params{
				Params: &qdrantpb.VectorParams{
					Size:     uint64(dim),
					Distance: toDistance(metric),
				},
			},
		},
	})
	if err != nil {
		return errs.New(errs.KindVectorOther, "create collection "+name, err)
	}
	return nil
}

func toDistance(m Metric) qdrantpb.Distance {
	switch m {
	case MetricCosine:
		return qdrantpb.Distance_Cosine
	default:
		return qdrantpb.Distance_Cosine
	}
}

func (s *QdrantStore) EnsurePayloadIndex(ctx context.Context, name, field string, kind PayloadIndexKind) error {
	schema := qdrantpb.FieldType_FieldTypeKeyword
	if kind == PayloadIndexInteger {
		schema = qdrantpb.FieldType_FieldTypeInteger
	}
	_, err := s.points.CreateFieldIndex(ctx, &qdrantpb.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      field,
		FieldType:      &schema,
	})
	if err != nil {
		// Qdrant returns AlreadyExists for a duplicate index; idempotent no-op.
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return errs.New(errs.KindVectorOther, "ensure payload index "+field, err)
	}
	return nil
}

func toPointStruct(p models.Point) (*qdrantpb.PointStruct, error) {
	id, err := pointID(p.ID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"file_path":      p.Payload.FilePath,
		"start_line":     int64(p.Payload.StartLine),
		"end_line":       int64(p.Payload.EndLine),
		"language":       p.Payload.Language,
		"element_type":   p.Payload.ElementType,
		"file_extension": p.Payload.FileExtension,
		"chunk_content":  p.Payload.ChunkContent,
		"branch":         p.Payload.Branch,
		"commit_hash":    p.Payload.CommitHash,
	}
	if p.Payload.TenantID != "" {
		payload["tenant_id"] = p.Payload.TenantID
	}
	return &qdrantpb.PointStruct{
		Id: id,
		Vectors: &qdrantpb.Vectors{
			VectorsOptions: &qdrantpb.Vectors_Vector{
				Vector: &qdrantpb.Vector{Data: p.Vector},
			},
		},
		Payload: mapToPayload(payload),
	}, nil
}

func pointID(id string) (*qdrantpb.PointId, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("point id %q is not a UUID: %w", id, err)
	}
	return &qdrantpb.PointId{PointIdOptions: &qdrantpb.PointId_Uuid{Uuid: id}}, nil
}

// mapToPayload converts a plain Go map into Qdrant's wire payload value
// map, mirroring the helper pattern used by indexer.processFile.
func mapToPayload(m map[string]any) map[string]*qdrantpb.Value {
	out := make(map[string]*qdrantpb.Value, len(m))
	for k, v := range m {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) *qdrantpb.Value {
	switch t := v.(type) {
	case string:
		return &qdrantpb.Value{Kind: &qdrantpb.Value_StringValue{StringValue: t}}
	case int64:
		return &qdrantpb.Value{Kind: &qdrantpb.Value_IntegerValue{IntegerValue: t}}
	case int:
		return &qdrantpb.Value{Kind: &qdrantpb.Value_IntegerValue{IntegerValue: int64(t)}}
	case bool:
		return &qdrantpb.Value{Kind: &qdrantpb.Value_BoolValue{BoolValue: t}}
	default:
		return &qdrantpb.Value{Kind: &qdrantpb.Value_NullValue{}}
	}
}

// Upsert retries transient transport errors with bounded exponential
// backoff (spec §4.2), capped at s.maxAttempts (default 3).
func (s *QdrantStore) Upsert(ctx context.Context, name string, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	pbPoints := make([]*qdrantpb.PointStruct, 0, len(points))
	for _, p := range points {
		ps, err := toPointStruct(p)
		if err != nil {
			return errs.New(errs.KindVectorOther, "encode point", err)
		}
		pbPoints = append(pbPoints, ps)
	}

	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		_, err := s.points.Upsert(ctx, &qdrantpb.UpsertPoints{
			CollectionName: name,
			Points:         pbPoints,
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) || attempt == s.maxAttempts {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("collection", name).Msg("upsert retry")
		select {
		case <-ctx.Done():
			return errs.New(errs.KindCancelled, "upsert cancelled", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return errs.New(errs.KindVectorTransport, "upsert "+name, lastErr)
}

func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func toPBFilter(f Filter) *qdrantpb.Filter {
	if len(f.Must) == 0 {
		return nil
	}
	conds := make([]*qdrantpb.Condition, 0, len(f.Must))
	for _, c := range f.Must {
		if len(c.MatchAny) > 0 {
			vals := make([]string, len(c.MatchAny))
			copy(vals, c.MatchAny)
			conds = append(conds, &qdrantpb.Condition{
				ConditionOneOf: &qdrantpb.Condition_Field{
					Field: &qdrantpb.FieldCondition{
						Key: c.Key,
						Match: &qdrantpb.Match{
							MatchValue: &qdrantpb.Match_Keywords{
								Keywords: &qdrantpb.RepeatedStrings{Strings: vals},
							},
						},
					},
				},
			})
			continue
		}
		conds = append(conds, &qdrantpb.Condition{
			ConditionOneOf: &qdrantpb.Condition_Field{
				Field: &qdrantpb.FieldCondition{
					Key: c.Key,
					Match: &qdrantpb.Match{
						MatchValue: &qdrantpb.Match_Keyword{Keyword: c.MatchKeyword},
					},
				},
			},
		})
	}
	return &qdrantpb.Filter{Must: conds}
}

func (s *QdrantStore) DeleteByFilter(ctx context.Context, name string, filter Filter) error {
	_, err := s.points.Delete(ctx, &qdrantpb.DeletePoints{
		CollectionName: name,
		Points: &qdrantpb.PointsSelector{
			PointsSelectorOneOf: &qdrantpb.PointsSelector_Filter{
				Filter: toPBFilter(filter),
			},
		},
	})
	if err != nil {
		return errs.New(errs.KindVectorTransport, "delete_by_filter "+name, err)
	}
	return nil
}

func (s *QdrantStore) DeletePoints(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pbIDs := make([]*qdrantpb.PointId, 0, len(ids))
	for _, id := range ids {
		pid, err := pointID(id)
		if err != nil {
			return err
		}
		pbIDs = append(pbIDs, pid)
	}
	_, err := s.points.Delete(ctx, &qdrantpb.DeletePoints{
		CollectionName: name,
		Points: &qdrantpb.PointsSelector{
			PointsSelectorOneOf: &qdrantpb.PointsSelector_Points{
				Points: &qdrantpb.PointsIdsList{Ids: pbIDs},
			},
		},
	})
	if err != nil {
		return errs.New(errs.KindVectorTransport, "delete_points "+name, err)
	}
	return nil
}

func (s *QdrantStore) Scroll(ctx context.Context, name string, filter Filter, pageLimit uint32, cursor string) (ScrollPage, error) {
	req := &qdrantpb.ScrollPoints{
		CollectionName: name,
		Filter:         toPBFilter(filter),
		Limit:          &pageLimit,
		WithPayload:    &qdrantpb.WithPayloadSelector{SelectorOptions: &qdrantpb.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrantpb.WithVectorsSelector{SelectorOptions: &qdrantpb.WithVectorsSelector_Enable{Enable: false}},
	}
	if cursor != "" {
		id, err := pointID(cursor)
		if err != nil {
			return ScrollPage{}, err
		}
		req.Offset = id
	}
	resp, err := s.points.Scroll(ctx, req)
	if err != nil {
		return ScrollPage{}, errs.New(errs.KindVectorTransport, "scroll "+name, err)
	}
	out := ScrollPage{}
	for _, rp := range resp.GetResult() {
		out.Points = append(out.Points, fromRetrievedPoint(rp))
	}
	if next := resp.GetNextPageOffset(); next != nil {
		out.Cursor = next.GetUuid()
	}
	return out, nil
}

func fromRetrievedPoint(rp *qdrantpb.RetrievedPoint) models.Point {
	payload := payloadFromPB(rp.GetPayload())
	return models.Point{
		ID:      idToString(rp.GetId()),
		Payload: payload,
	}
}

func idToString(id *qdrantpb.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadFromPB(m map[string]*qdrantpb.Value) models.Payload {
	get := func(k string) string { return m[k].GetStringValue() }
	getInt := func(k string) int { return int(m[k].GetIntegerValue()) }
	return models.Payload{
		FilePath:      get("file_path"),
		StartLine:     getInt("start_line"),
		EndLine:       getInt("end_line"),
		Language:      get("language"),
		ElementType:   get("element_type"),
		FileExtension: get("file_extension"),
		ChunkContent:  get("chunk_content"),
		Branch:        get("branch"),
		CommitHash:    get("commit_hash"),
		TenantID:      get("tenant_id"),
	}
}

func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, k uint64, filter Filter) ([]models.ScoredPoint, error) {
	resp, err := s.points.Search(ctx, &qdrantpb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          k,
		Filter:         toPBFilter(filter),
		WithPayload:    &qdrantpb.WithPayloadSelector{SelectorOptions: &qdrantpb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, errs.New(errs.KindVectorTransport, "search "+name, err)
	}
	out := make([]models.ScoredPoint, 0, len(resp.GetResult()))
	for _, sp := range resp.GetResult() {
		out = append(out, models.ScoredPoint{
			ID:             idToString(sp.GetId()),
			Score:          sp.GetScore(),
			Payload:        payloadFromPB(sp.GetPayload()),
			CollectionName: name,
		})
	}
	return out, nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.collections.Delete(ctx, &qdrantpb.DeleteCollection{CollectionName: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return errs.New(errs.KindVectorOther, "delete collection "+name, err)
	}
	return nil
}

func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	_, err := s.collections.List(ctx, &qdrantpb.ListCollectionsRequest{})
	if err != nil {
		return errs.New(errs.KindVectorTransport, "health check", err)
	}
	return nil
}

var _ Store = (*QdrantStore)(nil)
