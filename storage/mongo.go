package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/richinex/querygate/model"
)

// TurnsCollection is the collection MongoTurns writes to.
const TurnsCollection = "turns"

// MongoTurns archives turns in MongoDB.
type MongoTurns struct {
	col *mongo.Collection
}

// NewMongoTurns uses db's turns collection.
func NewMongoTurns(db *mongo.Database) *MongoTurns {
	return &MongoTurns{col: db.Collection(TurnsCollection)}
}

// turnDocument is the stored shape; field names match the JSON wire form.
type turnDocument struct {
	ConversationID     string `bson:"conversation_id"`
	Query              string `bson:"query"`
	FinalAnswer        string `bson:"final_answer"`
	DocumentsUsedCount int    `bson:"documents_used_count"`
	ProviderUsed       string `bson:"provider_used"`
	WebSearchUsed      bool   `bson:"web_search_used"`
	ToolCallCount      int    `bson:"tool_call_count"`
	CreatedAt          int64  `bson:"created_at"`
}

func toTurnDocument(t model.ConversationTurn) turnDocument {
	return turnDocument{
		ConversationID:     t.ConversationID,
		Query:              t.Query,
		FinalAnswer:        t.FinalAnswer,
		DocumentsUsedCount: t.DocumentsUsedCount,
		ProviderUsed:       t.ProviderUsed,
		WebSearchUsed:      t.WebSearchUsed,
		ToolCallCount:      t.ToolCallCount,
		CreatedAt:          t.CreatedAt.UnixMilli(),
	}
}

func (d turnDocument) turn() model.ConversationTurn {
	return model.ConversationTurn{
		ConversationID:     d.ConversationID,
		Query:              d.Query,
		FinalAnswer:        d.FinalAnswer,
		DocumentsUsedCount: d.DocumentsUsedCount,
		ProviderUsed:       d.ProviderUsed,
		WebSearchUsed:      d.WebSearchUsed,
		ToolCallCount:      d.ToolCallCount,
		CreatedAt:          time.UnixMilli(d.CreatedAt).UTC(),
	}
}

// Record inserts a turn.
func (s *MongoTurns) Record(ctx context.Context, turn model.ConversationTurn) error {
	if _, err := s.col.InsertOne(ctx, toTurnDocument(turn)); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

// ListTurns returns turns newest first.
func (s *MongoTurns) ListTurns(ctx context.Context, conversationID string, limit int) ([]model.ConversationTurn, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.col.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var stored []turnDocument
	if err := cur.All(ctx, &stored); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", err)
	}

	turns := make([]model.ConversationTurn, 0, len(stored))
	for _, d := range stored {
		turns = append(turns, d.turn())
	}
	return turns, nil
}

var _ TurnRecorder = (*MongoTurns)(nil)
