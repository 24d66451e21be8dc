package memory

import (
	"cmp"
	"context"
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/nugget/moltbot/internal/embeddings"
)

// Recall methods.
const (
	MethodVector  = "vector"
	MethodKeyword = "keyword"
)

// RecallResult is the outcome of an archival search. Memories never
// carry embeddings.
type RecallResult struct {
	Query    string   `json:"query"`
	Found    int      `json:"found"`
	Memories []Memory `json:"memories"`
	Method   string   `json:"method"`
}

// MemoryPage is one page of ListMemories.
type MemoryPage struct {
	TotalItems  int      `json:"total_items"`
	TotalPages  int      `json:"total_pages"`
	CurrentPage int      `json:"current_page"`
	Memories    []Memory `json:"memories"`
}

// contentHash is the first 12 hex characters of the MD5 of content.
func contentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:12]
}

// embed returns nil when no embedder is configured or the call fails;
// callers then fall back to keyword matching.
func (s *Store) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	vec, err := s.embedder.Generate(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, using keyword recall", "error", err)
		return nil
	}
	return vec
}

// Remember stores content in archival memory and returns its id.
// Identical content is rejected as a duplicate.
func (s *Store) Remember(ctx context.Context, content string, tags []string, importance int) (string, error) {
	h := contentHash(content)

	s.mu.Lock()
	dup := s.hasHash(h)
	s.mu.Unlock()
	if dup {
		return "", &ConstraintError{Op: "remember", Reason: "duplicate memory"}
	}

	// Embed outside the lock; the call may hit the network.
	vec := s.embed(ctx, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasHash(h) {
		return "", &ConstraintError{Op: "remember", Reason: "duplicate memory"}
	}

	if len(tags) > MaxMemoryTags {
		tags = tags[:MaxMemoryTags]
	}
	now := s.timestamp()
	m := &Memory{
		ID:         h,
		Hash:       h,
		Content:    truncateRunes(content, MaxMemoryChars),
		Tags:       append([]string{}, tags...),
		Importance: min(max(importance, 1), 10),
		CreatedAt:  now,
		AccessedAt: now,
		Embedding:  vec,
	}

	prev := s.doc.clone()
	s.doc.Archival = slices.Insert(s.doc.Archival, 0, m)
	if len(s.doc.Archival) > MaxArchival {
		slices.SortStableFunc(s.doc.Archival, func(a, b *Memory) int {
			if c := cmp.Compare(b.Importance, a.Importance); c != 0 {
				return c
			}
			return cmp.Compare(b.AccessCount, a.AccessCount)
		})
		s.doc.Archival = s.doc.Archival[:MaxArchival]
	}

	s.doc.Stats.MemoriesWritten++
	if err := s.commit(prev); err != nil {
		return "", err
	}
	return h, nil
}

func (s *Store) hasHash(h string) bool {
	return slices.ContainsFunc(s.doc.Archival, func(m *Memory) bool { return m.Hash == h })
}

type scored struct {
	mem   *Memory
	score float64
}

// Recall searches archival memory. With an embedder and a usable query
// vector it ranks by cosine similarity; if that yields nothing it falls
// back to keyword overlap. When tags are given only memories carrying
// at least one of them are considered. Returned memories are marked
// accessed.
func (s *Store) Recall(ctx context.Context, query string, limit int, tags ...string) (*RecallResult, error) {
	if limit <= 0 {
		limit = 5
	}
	queryVec := s.embed(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.doc.Archival
	if len(tags) > 0 {
		candidates = slices.DeleteFunc(slices.Clone(candidates), func(m *Memory) bool {
			return !slices.ContainsFunc(tags, func(t string) bool { return hasTag(m, t) })
		})
	}

	method := MethodVector
	results := vectorScores(candidates, queryVec)
	if len(results) == 0 {
		method = MethodKeyword
		results = keywordScores(candidates, query)
	}

	slices.SortStableFunc(results, func(a, b scored) int { return cmp.Compare(b.score, a.score) })
	if len(results) > limit {
		results = results[:limit]
	}

	prev := s.doc.clone()
	now := s.timestamp()
	out := make([]Memory, 0, len(results))
	for _, r := range results {
		r.mem.AccessedAt = now
		r.mem.AccessCount++
		out = append(out, stripEmbedding(r.mem))
	}
	s.doc.Stats.MemoriesRead++
	if err := s.commit(prev); err != nil {
		return nil, err
	}

	return &RecallResult{Query: query, Found: len(out), Memories: out, Method: method}, nil
}

func vectorScores(mems []*Memory, queryVec []float32) []scored {
	if len(queryVec) == 0 {
		return nil
	}
	var out []scored
	for _, m := range mems {
		var score float64
		if len(m.Embedding) > 0 {
			score = float64(embeddings.CosineSimilarity(queryVec, m.Embedding)) * 10
		}
		score += float64(m.Importance) / 10
		if score > 0.1 {
			out = append(out, scored{mem: m, score: score})
		}
	}
	return out
}

// keywordScores awards 2 points per query word found in the content, 3
// per word found in any tag, plus half the importance.
func keywordScores(mems []*Memory, query string) []scored {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if !slices.Contains(words, w) {
			words = append(words, w)
		}
	}

	var out []scored
	for _, m := range mems {
		content := strings.ToLower(m.Content)
		var score float64
		for _, w := range words {
			if strings.Contains(content, w) {
				score += 2
			}
			if slices.ContainsFunc(m.Tags, func(t string) bool {
				return strings.Contains(strings.ToLower(t), w)
			}) {
				score += 3
			}
		}
		score += float64(m.Importance) / 2
		if score > 0 {
			out = append(out, scored{mem: m, score: score})
		}
	}
	return out
}

func hasTag(m *Memory, tag string) bool {
	return slices.ContainsFunc(m.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

func stripEmbedding(m *Memory) Memory {
	out := *m
	out.Embedding = nil
	out.Tags = slices.Clone(m.Tags)
	return out
}

// Forget deletes the memory with the given id and reports whether it
// existed.
func (s *Store) Forget(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc.clone()
	before := len(s.doc.Archival)
	s.doc.Archival = slices.DeleteFunc(s.doc.Archival, func(m *Memory) bool { return m.ID == id })
	removed := len(s.doc.Archival) < before
	if err := s.commit(prev); err != nil {
		return false, err
	}
	return removed, nil
}

// ListMemories pages through archival memory, newest first, optionally
// filtered to one tag (case-insensitive). page is 1-based.
func (s *Store) ListMemories(limit, page int, tag string) MemoryPage {
	if limit <= 0 {
		limit = 10
	}
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mems := s.doc.Archival
	if tag != "" {
		mems = slices.DeleteFunc(slices.Clone(mems), func(m *Memory) bool { return !hasTag(m, tag) })
	}

	total := len(mems)
	result := MemoryPage{
		TotalItems:  total,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
		Memories:    []Memory{},
	}
	start := (page - 1) * limit
	if start >= total {
		return result
	}
	end := min(start+limit, total)
	for _, m := range mems[start:end] {
		result.Memories = append(result.Memories, stripEmbedding(m))
	}
	return result
}
