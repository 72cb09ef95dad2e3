package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed structured side of the memory engine:
// profiles, raw feedback, learned corrections and the knowledge graph.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %v", ErrStore, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrStore, err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %v", ErrStore, err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		profile_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS feedback (
		feedback_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		session_id TEXT,
		feedback_type TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT 'moderate',
		original_content TEXT,
		original_analysis TEXT,
		agent_type TEXT,
		user_correction TEXT,
		user_explanation TEXT,
		topics_json TEXT,
		sources_json TEXT,
		processed INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		learned_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS learned_corrections (
		correction_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		pattern TEXT NOT NULL,
		correction TEXT NOT NULL,
		context TEXT,
		confidence REAL NOT NULL DEFAULT 0.5,
		times_applied INTEGER NOT NULL DEFAULT 0,
		times_confirmed INTEGER NOT NULL DEFAULT 0,
		times_rejected INTEGER NOT NULL DEFAULT 0,
		embedding_key TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS knowledge_nodes (
		node_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		node_type TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		user_sentiment REAL DEFAULT 0,
		user_notes TEXT,
		interaction_count INTEGER NOT NULL DEFAULT 0,
		embedding_key TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS knowledge_edges (
		edge_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id),
		source_node_id TEXT NOT NULL REFERENCES knowledge_nodes(node_id),
		target_node_id TEXT NOT NULL REFERENCES knowledge_nodes(node_id),
		relation_type TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 0.5,
		user_confirmed INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback(user_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_processed ON feedback(user_id, processed);
	CREATE INDEX IF NOT EXISTS idx_corrections_user ON learned_corrections(user_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_user ON knowledge_nodes(user_id);
	CREATE INDEX IF NOT EXISTS idx_edges_user ON knowledge_edges(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveProfile upserts a profile, refreshing updated_at.
func (s *Store) SaveProfile(profile *UserProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("%w: encoding profile: %v", ErrStore, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO users (user_id, profile_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET profile_json = excluded.profile_json, updated_at = excluded.updated_at`,
		profile.UserID, string(blob), profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: saving profile %s: %v", ErrStore, profile.UserID, err)
	}
	return nil
}

// GetProfile loads a profile, returning ErrNotFound when absent.
func (s *Store) GetProfile(userID string) (*UserProfile, error) {
	var blob string
	err := s.db.QueryRow(`SELECT profile_json FROM users WHERE user_id = ?`, userID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: profile %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading profile %s: %v", ErrStore, userID, err)
	}
	var profile UserProfile
	if err := json.Unmarshal([]byte(blob), &profile); err != nil {
		return nil, fmt.Errorf("%w: decoding profile %s: %v", ErrStore, userID, err)
	}
	return &profile, nil
}

// SaveFeedback inserts one feedback record.
func (s *Store) SaveFeedback(fb *Feedback) error {
	topics, err := json.Marshal(fb.Topics)
	if err != nil {
		return fmt.Errorf("%w: encoding topics: %v", ErrStore, err)
	}
	sources, err := json.Marshal(fb.Sources)
	if err != nil {
		return fmt.Errorf("%w: encoding sources: %v", ErrStore, err)
	}
	if fb.Severity == "" {
		fb.Severity = SeverityModerate
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(`
		INSERT INTO feedback (feedback_id, user_id, session_id, feedback_type, severity,
			original_content, original_analysis, agent_type, user_correction, user_explanation,
			topics_json, sources_json, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.FeedbackID, fb.UserID, fb.SessionID, string(fb.Type), string(fb.Severity),
		fb.OriginalContent, fb.OriginalAnalysis, fb.AgentType, fb.UserCorrection, fb.UserExplanation,
		string(topics), string(sources), boolToInt(fb.Processed), fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: saving feedback %s: %v", ErrStore, fb.FeedbackID, err)
	}
	return nil
}

// GetUnprocessedFeedback returns pending feedback oldest first.
func (s *Store) GetUnprocessedFeedback(userID string, limit int) ([]Feedback, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT feedback_id, user_id, session_id, feedback_type, severity,
			original_content, original_analysis, agent_type, user_correction, user_explanation,
			topics_json, sources_json, processed, created_at, learned_at
		FROM feedback
		WHERE user_id = ? AND processed = 0
		ORDER BY created_at
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying feedback for %s: %v", ErrStore, userID, err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fb)
	}
	return out, rows.Err()
}

func scanFeedback(rows *sql.Rows) (*Feedback, error) {
	var fb Feedback
	var sessionID, agentType, origContent, origAnalysis sql.NullString
	var correction, explanation, topicsJSON, sourcesJSON sql.NullString
	var processed int
	var learnedAt sql.NullTime
	var fbType, severity string
	err := rows.Scan(&fb.FeedbackID, &fb.UserID, &sessionID, &fbType, &severity,
		&origContent, &origAnalysis, &agentType, &correction, &explanation,
		&topicsJSON, &sourcesJSON, &processed, &fb.CreatedAt, &learnedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: scanning feedback: %v", ErrStore, err)
	}
	fb.SessionID = sessionID.String
	fb.Type = FeedbackType(fbType)
	fb.Severity = Severity(severity)
	fb.OriginalContent = origContent.String
	fb.OriginalAnalysis = origAnalysis.String
	fb.AgentType = agentType.String
	fb.UserCorrection = correction.String
	fb.UserExplanation = explanation.String
	fb.Processed = processed != 0
	if learnedAt.Valid {
		fb.LearnedAt = &learnedAt.Time
	}
	if topicsJSON.Valid && topicsJSON.String != "" {
		_ = json.Unmarshal([]byte(topicsJSON.String), &fb.Topics)
	}
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		_ = json.Unmarshal([]byte(sourcesJSON.String), &fb.Sources)
	}
	return &fb, nil
}

// MarkFeedbackProcessed flags one feedback row as learned.
func (s *Store) MarkFeedbackProcessed(feedbackID string) error {
	res, err := s.db.Exec(`
		UPDATE feedback SET processed = 1, learned_at = CURRENT_TIMESTAMP
		WHERE feedback_id = ?`, feedbackID)
	if err != nil {
		return fmt.Errorf("%w: marking feedback %s: %v", ErrStore, feedbackID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: feedback %s", ErrNotFound, feedbackID)
	}
	return nil
}

// SaveCorrection upserts a learned correction.
func (s *Store) SaveCorrection(c *LearnedCorrection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO learned_corrections (correction_id, user_id, pattern, correction, context,
			confidence, times_applied, times_confirmed, times_rejected, embedding_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(correction_id) DO UPDATE SET
			pattern = excluded.pattern, correction = excluded.correction, context = excluded.context,
			confidence = excluded.confidence, embedding_key = excluded.embedding_key`,
		c.CorrectionID, c.UserID, c.Pattern, c.Correction, c.Context,
		c.Confidence, c.TimesApplied, c.TimesConfirmed, c.TimesRejected, c.EmbeddingKey, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: saving correction %s: %v", ErrStore, c.CorrectionID, err)
	}
	return nil
}

// GetCorrections returns a user's corrections, most trusted first.
func (s *Store) GetCorrections(userID string, limit int) ([]LearnedCorrection, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT correction_id, user_id, pattern, correction, context, confidence,
			times_applied, times_confirmed, times_rejected, embedding_key, created_at
		FROM learned_corrections
		WHERE user_id = ?
		ORDER BY confidence DESC, created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying corrections for %s: %v", ErrStore, userID, err)
	}
	defer rows.Close()

	var out []LearnedCorrection
	for rows.Next() {
		var (
			c                     LearnedCorrection
			context, embeddingKey sql.NullString
		)
		if err := rows.Scan(&c.CorrectionID, &c.UserID, &c.Pattern, &c.Correction, &context,
			&c.Confidence, &c.TimesApplied, &c.TimesConfirmed, &c.TimesRejected, &embeddingKey, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning correction: %v", ErrStore, err)
		}
		c.Context = context.String
		c.EmbeddingKey = embeddingKey.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordCorrectionOutcome adjusts a correction's confidence after use:
// confirmation nudges it up by 0.05, rejection drops it by 0.1. Both
// count as an application.
func (s *Store) RecordCorrectionOutcome(correctionID string, confirmed bool) error {
	var query string
	if confirmed {
		query = `
			UPDATE learned_corrections
			SET confidence = MIN(1.0, confidence + 0.05),
				times_confirmed = times_confirmed + 1,
				times_applied = times_applied + 1
			WHERE correction_id = ?`
	} else {
		query = `
			UPDATE learned_corrections
			SET confidence = MAX(0.0, confidence - 0.1),
				times_rejected = times_rejected + 1,
				times_applied = times_applied + 1
			WHERE correction_id = ?`
	}
	res, err := s.db.Exec(query, correctionID)
	if err != nil {
		return fmt.Errorf("%w: updating correction %s: %v", ErrStore, correctionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: correction %s", ErrNotFound, correctionID)
	}
	return nil
}

// SaveNode upserts a knowledge node.
func (s *Store) SaveNode(n *KnowledgeNode) error {
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	_, err := s.db.Exec(`
		INSERT INTO knowledge_nodes (node_id, user_id, node_type, name, description,
			user_sentiment, user_notes, interaction_count, embedding_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			node_type = excluded.node_type, name = excluded.name, description = excluded.description,
			user_sentiment = excluded.user_sentiment, user_notes = excluded.user_notes,
			interaction_count = excluded.interaction_count, embedding_key = excluded.embedding_key,
			updated_at = excluded.updated_at`,
		n.NodeID, n.UserID, string(n.Type), n.Name, n.Description,
		n.UserSentiment, n.UserNotes, n.InteractionCount, n.EmbeddingKey, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: saving node %s: %v", ErrStore, n.NodeID, err)
	}
	return nil
}

// GetNodes returns all of a user's knowledge nodes, optionally filtered
// by type.
func (s *Store) GetNodes(userID string, nodeType NodeType) ([]KnowledgeNode, error) {
	query := `
		SELECT node_id, user_id, node_type, name, description, user_sentiment,
			user_notes, interaction_count, embedding_key, created_at, updated_at
		FROM knowledge_nodes WHERE user_id = ?`
	args := []any{userID}
	if nodeType != "" {
		query += ` AND node_type = ?`
		args = append(args, string(nodeType))
	}
	query += ` ORDER BY interaction_count DESC, updated_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying nodes for %s: %v", ErrStore, userID, err)
	}
	defer rows.Close()

	var out []KnowledgeNode
	for rows.Next() {
		var n KnowledgeNode
		var typ string
		var sentiment sql.NullFloat64
		var description, notes, ekey sql.NullString
		if err := rows.Scan(&n.NodeID, &n.UserID, &typ, &n.Name, &description,
			&sentiment, &notes, &n.InteractionCount, &ekey, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning node: %v", ErrStore, err)
		}
		n.Type = NodeType(typ)
		n.Description = description.String
		n.UserSentiment = sentiment.Float64
		n.UserNotes = notes.String
		n.EmbeddingKey = ekey.String
		out = append(out, n)
	}
	return out, rows.Err()
}

// SaveEdge upserts a knowledge edge.
func (s *Store) SaveEdge(e *KnowledgeEdge) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO knowledge_edges (edge_id, user_id, source_node_id, target_node_id,
			relation_type, weight, user_confirmed, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(edge_id) DO UPDATE SET
			relation_type = excluded.relation_type, weight = excluded.weight,
			user_confirmed = excluded.user_confirmed, notes = excluded.notes`,
		e.EdgeID, e.UserID, e.SourceNodeID, e.TargetNodeID,
		e.RelationType, e.Weight, boolToInt(e.UserConfirmed), e.Notes, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: saving edge %s: %v", ErrStore, e.EdgeID, err)
	}
	return nil
}

// GetEdges returns all edges for a user.
func (s *Store) GetEdges(userID string) ([]KnowledgeEdge, error) {
	rows, err := s.db.Query(`
		SELECT edge_id, user_id, source_node_id, target_node_id, relation_type,
			weight, user_confirmed, notes, created_at
		FROM knowledge_edges WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying edges for %s: %v", ErrStore, userID, err)
	}
	defer rows.Close()

	var out []KnowledgeEdge
	for rows.Next() {
		var (
			e         KnowledgeEdge
			confirmed int
			notes     sql.NullString
		)
		if err := rows.Scan(&e.EdgeID, &e.UserID, &e.SourceNodeID, &e.TargetNodeID,
			&e.RelationType, &e.Weight, &confirmed, &notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning edge: %v", ErrStore, err)
		}
		e.UserConfirmed = confirmed != 0
		e.Notes = notes.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteUser removes every record for a user in one transaction,
// children first so foreign keys hold.
func (s *Store) DeleteUser(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: beginning delete of %s: %v", ErrStore, userID, err)
	}
	for _, stmt := range []string{
		`DELETE FROM knowledge_edges WHERE user_id = ?`,
		`DELETE FROM knowledge_nodes WHERE user_id = ?`,
		`DELETE FROM learned_corrections WHERE user_id = ?`,
		`DELETE FROM feedback WHERE user_id = ?`,
		`DELETE FROM users WHERE user_id = ?`,
	} {
		if _, err := tx.Exec(stmt, userID); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: deleting user %s: %v", ErrStore, userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing delete of %s: %v", ErrStore, userID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
