package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/contramate/internal/db"
	"github.com/kailas-cloud/contramate/internal/domain/search/filter"
)

// SearchHybrid runs KNN and BM25 FT.SEARCH queries under the same TAG pre-filter and
// fuses them with Reciprocal Rank Fusion. With only one signal present the single
// query's ranking is returned as-is.
func (s *Store) SearchHybrid(ctx context.Context, q *db.HybridQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	hasText := strings.TrimSpace(q.Text) != ""
	hasVector := len(q.Vector) > 0
	if !hasText && !hasVector {
		return nil, fmt.Errorf("text or vector is required")
	}

	filterStr := buildFilter(q.Filter)

	var knn, bm25 *db.SearchResult
	var err error
	if hasVector {
		if knn, err = s.searchKNN(ctx, q.IndexName, filterStr, q.Vector, q.K); err != nil {
			return nil, err
		}
	}
	if hasText {
		if bm25, err = s.searchBM25(ctx, q.IndexName, filterStr, q.Text, q.K); err != nil {
			return nil, err
		}
	}

	switch {
	case knn == nil:
		return bm25, nil
	case bm25 == nil:
		return knn, nil
	default:
		return fuseRRF(knn.Entries, bm25.Entries, s.rrfK, q.K), nil
	}
}

// SearchList returns passages matching the filter ordered by chunk index.
func (s *Store) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	args := []string{q.IndexName, buildFilter(q.Filter)}
	args = appendReturn(args)
	args = append(args,
		"SORTBY", db.FieldChunkIndex, "ASC",
		"LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: classify(err)}
	}

	return parseListResult(raw)
}

func (s *Store) searchKNN(
	ctx context.Context, index, filterStr string, vector []float32, k int,
) (*db.SearchResult, error) {
	queryStr := fmt.Sprintf("(%s)=>[KNN %d @%s $BLOB]", filterStr, k, db.FieldVector)

	args := appendReturn([]string{index, queryStr}, "__vector_score")
	args = append(args,
		"SORTBY", "__vector_score", "ASC",
		"LIMIT", "0", strconv.Itoa(k),
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: classify(err)}
	}

	return parseKNNResult(raw)
}

func (s *Store) searchBM25(
	ctx context.Context, index, filterStr, text string, k int,
) (*db.SearchResult, error) {
	queryStr := fmt.Sprintf("%s @%s:(%s)", filterStr, db.FieldContent, escapeQuery(text))

	args := appendReturn([]string{index, queryStr})
	args = append(args,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: classify(err)}
	}

	return parseBM25Result(raw)
}

func appendReturn(args []string, extra ...string) []string {
	fields := append(append([]string(nil), db.PassageFields...), extra...)
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	return append(args, fields...)
}

// --- Fusion ---

// fuseRRF merges two rankings: score(d) = sum of 1/(k + rank_i(d)).
// Scores are normalized by the best attainable value 2/(k+1) so a passage ranked
// first by both signals scores 1.0. Ties break on key for a stable order.
func fuseRRF(knn, bm25 []db.SearchEntry, k, topK int) *db.SearchResult {
	merged := make(map[string]*db.SearchEntry, len(knn)+len(bm25))
	order := make([]string, 0, len(knn)+len(bm25))

	add := func(entries []db.SearchEntry) {
		for rank, e := range entries {
			s := 1.0 / float64(k+rank+1)
			if existing, ok := merged[e.Key]; ok {
				existing.Score += s
				continue
			}
			entry := db.SearchEntry{Key: e.Key, Score: s, Fields: e.Fields}
			merged[e.Key] = &entry
			order = append(order, e.Key)
		}
	}
	add(knn)
	add(bm25)

	best := 2.0 / float64(k+1)
	entries := make([]db.SearchEntry, 0, len(order))
	for _, key := range order {
		e := *merged[key]
		e.Score /= best
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Key < entries[j].Key
	})

	if len(entries) > topK {
		entries = entries[:topK]
	}
	return &db.SearchResult{Total: len(merged), Entries: entries}
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	res, err := parseListResult(raw)
	if err != nil {
		return nil, err
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		if scoreStr, ok := e.Fields["__vector_score"]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				e.Score = max(0, 1.0-d) // cosine distance → similarity, clamped to [0,1]
			}
			delete(e.Fields, "__vector_score")
		}
	}
	return res, nil
}

func parseBM25Result(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	total, ok, err := parseTotal(raw)
	if err != nil || !ok {
		return &db.SearchResult{}, err
	}

	entries := make([]db.SearchEntry, 0, total)
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  score,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: total, Entries: entries}, nil
}

func parseListResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	total, ok, err := parseTotal(raw)
	if err != nil || !ok {
		return &db.SearchResult{}, err
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: total, Entries: entries}, nil
}

func parseTotal(raw []rueidis.RedisMessage) (int, bool, error) {
	if len(raw) == 0 {
		return 0, false, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, false, fmt.Errorf("parse total: %w", err)
	}
	return int(total), total > 0, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildFilter ANDs the compiled clauses as TAG predicates: @field:{a | b}.
func buildFilter(c filter.Compiled) string {
	if c.Len() == 0 {
		return "*"
	}
	parts := make([]string, 0, c.Len())
	for _, cl := range c.Clauses() {
		values := cl.Values()
		escaped := make([]string, len(values))
		for i, v := range values {
			escaped[i] = tagEscaper.Replace(v)
		}
		parts = append(parts, fmt.Sprintf("@%s:{%s}", cl.Field(), strings.Join(escaped, " | ")))
	}
	return strings.Join(parts, " ")
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"|", "\\|",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
