package mongostore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/forumpulse/internal/service"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestClassifyBadHint(t *testing.T) {
	err := mongo.CommandError{
		Code:    2,
		Name:    "BadValue",
		Message: "error processing query: planner returned error :: caused by :: hint provided does not correspond to an existing index",
	}

	if got := classify(err); !errors.Is(got, service.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", got)
	}
}

func TestClassifyWriteConflict(t *testing.T) {
	conflict := mongo.CommandError{Code: 112, Name: "WriteConflict", Message: "WriteConflict error"}
	if got := classify(conflict); !errors.Is(got, service.ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict for code 112, got %v", got)
	}

	transient := mongo.CommandError{Code: 251, Message: "no such transaction", Labels: []string{"TransientTransactionError"}}
	if got := classify(transient); !errors.Is(got, service.ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict for transient label, got %v", got)
	}
}

func TestClassifyPassesThroughOtherErrors(t *testing.T) {
	plain := fmt.Errorf("dial tcp: connection refused")
	if got := classify(plain); got != plain {
		t.Fatalf("expected error to pass through, got %v", got)
	}
	if classify(nil) != nil {
		t.Fatal("expected nil to stay nil")
	}
}

func TestRankedFindOptions(t *testing.T) {
	opts := rankedFindOptions(service.RankedQuery{Status: "open", Limit: 7})

	if opts.Hint != RankedIndexName {
		t.Fatalf("expected hint %s, got %v", RankedIndexName, opts.Hint)
	}
	if opts.Limit == nil || *opts.Limit != 7 {
		t.Fatalf("expected limit 7, got %v", opts.Limit)
	}
	sort, ok := opts.Sort.(bson.D)
	if !ok || len(sort) != 1 || sort[0].Key != "trendingScore" || sort[0].Value != -1 {
		t.Fatalf("unexpected sort: %#v", opts.Sort)
	}

	filter := rankedFilter(service.RankedQuery{Status: "open"})
	if len(filter) != 1 || filter[0].Key != "status" || filter[0].Value != "open" {
		t.Fatalf("unexpected filter: %#v", filter)
	}
}

func TestRecentFindOptionsDefaultsLimit(t *testing.T) {
	opts := recentFindOptions(service.RecentQuery{})
	if opts.Limit == nil || *opts.Limit != defaultListLimit {
		t.Fatalf("expected default limit, got %v", opts.Limit)
	}
	if opts.Hint != nil {
		t.Fatalf("expected no hint on the recent query, got %v", opts.Hint)
	}
}

func TestDecodeThreadsNormalizesVariants(t *testing.T) {
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	oid := primitive.NewObjectID()
	docs := []bson.M{
		{
			"_id":       oid,
			"title":     "legacy",
			"views":     int32(40),
			"replies":   int64(3),
			"createdAt": primitive.NewDateTimeFromTime(created),
		},
		{
			"_id":           "modern",
			"title":         "modern",
			"viewsCount":    int64(2),
			"trendingScore": 12.5,
		},
	}

	threads := decodeThreads(docs)
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].ID != oid.Hex() || threads[0].ViewsCount != 40 || threads[0].RepliesCount != 3 {
		t.Fatalf("unexpected legacy thread: %+v", threads[0])
	}
	if !threads[0].CreatedAt.Equal(created) || threads[0].HasStoredScore() {
		t.Fatalf("unexpected legacy timestamps/score: %+v", threads[0])
	}
	if threads[1].ID != "modern" || !threads[1].HasStoredScore() || *threads[1].StoredScore != 12.5 {
		t.Fatalf("unexpected modern thread: %+v", threads[1])
	}
}

func TestThreadDocumentRoundTripsThroughNormalizer(t *testing.T) {
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	score := 9.0
	doc := threadDocument(service.ThreadView{
		ID:           "t1",
		Title:        "Hello",
		RepliesCount: 2,
		BestAnswerID: "r1",
		CreatedAt:    created,
		StoredScore:  &score,
	})

	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded bson.M
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	got := service.NormalizeThread("", decoded)
	if got.ID != "t1" || got.Status != "open" || got.RepliesCount != 2 || got.BestAnswerID != "r1" {
		t.Fatalf("unexpected thread: %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.LastActivityAt.Equal(created) {
		t.Fatalf("unexpected timestamps: %+v", got)
	}
	if !got.HasStoredScore() || *got.StoredScore != 9 {
		t.Fatalf("expected stored score 9, got %v", got.StoredScore)
	}
}

func TestScoreWritesAndPipeline(t *testing.T) {
	writes := scoreWrites(map[string]float64{"a": 1, "b": 2})
	if len(writes) != 2 {
		t.Fatalf("expected 2 write models, got %d", len(writes))
	}
	if len(scoreWrites(nil)) != 0 {
		t.Fatal("expected no writes for empty scores")
	}

	pipeline := scopePipeline("forum")
	if len(pipeline) != 1 || pipeline[0][0].Key != "$match" {
		t.Fatalf("unexpected pipeline: %#v", pipeline)
	}
}
