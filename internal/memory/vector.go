package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"clipbrief/internal/llm"
	"clipbrief/internal/logger"
)

const maxCollectionName = 63

// VectorStore is the semantic side of the memory engine. Each user gets
// two chromem collections: learned corrections and past conversations.
type VectorStore struct {
	db       *chromem.DB
	embedder llm.Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// SearchHit is one similarity search result.
type SearchHit struct {
	Content  string
	Metadata map[string]string
	Distance float32
}

// NewVectorStore opens a persistent store under dir. An empty dir keeps
// everything in memory, which the tests use.
func NewVectorStore(dir string, embedder llm.Embedder) (*VectorStore, error) {
	var db *chromem.DB
	var err error
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, true)
		if err != nil {
			return nil, fmt.Errorf("%w: opening vector store at %s: %v", ErrStore, dir, err)
		}
	}
	return &VectorStore{
		db:          db,
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// embeddingFunc bridges the LLM embedder into chromem.
func (v *VectorStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return v.embedder.Embed(ctx, text)
	}
}

// collectionName builds the per-user collection name, sanitized to the
// allowed charset and length.
func collectionName(userID, kind string) string {
	name := strings.ReplaceAll(userID+"_"+kind, ".", "_")
	if len(name) > maxCollectionName {
		name = name[:maxCollectionName]
	}
	return name
}

func (v *VectorStore) collection(name string) (*chromem.Collection, error) {
	v.mu.RLock()
	col, ok := v.collections[name]
	v.mu.RUnlock()
	if ok {
		return col, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if col, ok := v.collections[name]; ok {
		return col, nil
	}
	col, err := v.db.GetOrCreateCollection(name, nil, v.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %v", ErrStore, name, err)
	}
	v.collections[name] = col
	return col, nil
}

// AddCorrection embeds and stores one learned correction.
func (v *VectorStore) AddCorrection(ctx context.Context, c *LearnedCorrection) error {
	col, err := v.collection(collectionName(c.UserID, "corrections"))
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:      c.CorrectionID,
		Content: correctionText(c),
		Metadata: map[string]string{
			"correction_id": c.CorrectionID,
			"pattern":       c.Pattern,
			"correction":    c.Correction,
			"context":       c.Context,
			"confidence":    strconv.FormatFloat(c.Confidence, 'f', 2, 64),
		},
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("%w: adding correction %s: %v", ErrStore, c.CorrectionID, err)
	}
	return nil
}

// correctionText is the embedded representation of a correction.
func correctionText(c *LearnedCorrection) string {
	return c.Pattern + " | " + c.Correction + " | " + c.Context
}

// SearchCorrections finds corrections semantically close to query.
func (v *VectorStore) SearchCorrections(ctx context.Context, userID, query string, limit int) ([]SearchHit, error) {
	return v.search(ctx, collectionName(userID, "corrections"), query, limit)
}

// AddConversation stores one conversation snippet. The document ID is
// derived from the session and a content hash so replays do not pile up
// duplicates.
func (v *VectorStore) AddConversation(ctx context.Context, userID, sessionID, content string, metadata map[string]string) error {
	col, err := v.collection(collectionName(userID, "conversations"))
	if err != nil {
		return err
	}
	sum := sha256.Sum256([]byte(content))
	doc := chromem.Document{
		ID:       sessionID + "_" + hex.EncodeToString(sum[:])[:10],
		Content:  content,
		Metadata: metadata,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("%w: adding conversation for %s: %v", ErrStore, userID, err)
	}
	return nil
}

// SearchConversations finds past conversation snippets close to query.
func (v *VectorStore) SearchConversations(ctx context.Context, userID, query string, limit int) ([]SearchHit, error) {
	return v.search(ctx, collectionName(userID, "conversations"), query, limit)
}

func (v *VectorStore) search(ctx context.Context, name, query string, limit int) ([]SearchHit, error) {
	col, err := v.collection(name)
	if err != nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}
	if limit < 1 {
		limit = 1
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", ErrStore, name, err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			Content:  r.Content,
			Metadata: r.Metadata,
			// chromem reports cosine similarity; flip it into a
			// distance so smaller means closer.
			Distance: 1 - r.Similarity,
		})
	}
	return hits, nil
}

// DeleteCorrection removes one correction document.
func (v *VectorStore) DeleteCorrection(ctx context.Context, userID, correctionID string) error {
	col, err := v.collection(collectionName(userID, "corrections"))
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, correctionID); err != nil {
		return fmt.Errorf("%w: deleting correction %s: %v", ErrStore, correctionID, err)
	}
	return nil
}

// DeleteUser drops both of a user's collections. Missing collections
// are not an error.
func (v *VectorStore) DeleteUser(userID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, kind := range []string{"corrections", "conversations"} {
		name := collectionName(userID, kind)
		if err := v.db.DeleteCollection(name); err != nil {
			logger.Debug("vector collection delete skipped", "collection", name, "error", err.Error())
		}
		delete(v.collections, name)
	}
	return nil
}
