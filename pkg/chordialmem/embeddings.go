package chordialmem

import (
	"context"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
)

// storeEmbedding persists a memory's vector. Vectors of the wrong size are
// dropped; ranking never depends on them.
func (s *Store) storeEmbedding(ctx context.Context, memoryID int64, embedding []float32) {
	if len(embedding) != VectorDimensions {
		return
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return
	}

	_, _ = s.db.ExecContext(ctx, `DELETE FROM vec_memories WHERE memory_id = ?`, memoryID)
	_, _ = s.db.ExecContext(ctx, `INSERT INTO vec_memories (memory_id, embedding) VALUES (?, ?)`, memoryID, blob)
}

// HasEmbedding reports whether a vector is stored for the memory
func (s *Store) HasEmbedding(ctx context.Context, memoryID int64) bool {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vec_memories WHERE memory_id = ?`, memoryID).Scan(&n)
	return err == nil && n > 0
}
