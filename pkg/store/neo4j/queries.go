package neo4j

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/goverflow/goverflow/pkg/models"
)

// contributedQuery finds discussions the user took part in without having
// asked them: through an answer, a comment on the question, or a comment on
// one of its answers.
const contributedQuery = `
MATCH (u:User {id: $userId})
MATCH (author:User)-[:ASKED]->(q:Question)
WHERE NOT (u)-[:ASKED]->(q)
  AND (
    (u)-[:WROTE]->(:Answer)-[:ANSWERED]->(q)
    OR (u)-[:COMMENTED]->(:Comment)-[:REFERS_TO]->(q)
    OR (u)-[:COMMENTED]->(:Comment)-[:REFERS_TO]->(:Answer)-[:ANSWERED]->(q)
  )
WITH DISTINCT q, author
OPTIONAL MATCH (q)-[:ABOUT]->(t:Tag)
WITH q, author, collect(t.id) AS tags
RETURN q.id AS id, q.title AS title, q.created AS created, tags,
       author.id AS authorId, author.name AS authorName
ORDER BY q.created DESC`

const askedQuery = `
MATCH (u:User {id: $userId})-[:ASKED]->(q:Question)
OPTIONAL MATCH (q)-[:ABOUT]->(t:Tag)
WITH u, q, collect(t.id) AS tags
RETURN q.id AS id, q.title AS title, q.created AS created, tags,
       u.id AS authorId, u.name AS authorName
ORDER BY q.created DESC
SKIP $skip LIMIT $limit`

const countAskedQuery = `
MATCH (u:User {id: $userId})-[:ASKED]->(q:Question)
RETURN count(q) AS n`

const coUsagesQuery = `
MATCH (t1:Tag {id: $tag})<-[:ABOUT]-(q:Question)-[:ABOUT]->(t2:Tag)
WHERE t1 <> t2
RETURN t2.id AS tag, count(DISTINCT q) AS commonUsages
ORDER BY commonUsages DESC, tag ASC`

// voteStatsQuery chains two OPTIONAL MATCH clauses so a user with no
// answers, no comments or no votes still produces one all-zero row.
const voteStatsQuery = `
MATCH (u:User {id: $userId})
OPTIONAL MATCH (u)-[:WROTE]->(:Answer)<-[av:VOTED]-(:User)
WITH u,
     count(CASE WHEN av.useful THEN 1 END) AS answerUp,
     count(CASE WHEN NOT av.useful THEN 1 END) AS answerDown
OPTIONAL MATCH (u)-[:COMMENTED]->(:Comment)<-[cv:VOTED]-(:User)
RETURN answerUp, answerDown,
       count(CASE WHEN cv.useful THEN 1 END) AS commentUp,
       count(CASE WHEN NOT cv.useful THEN 1 END) AS commentDown`

func (g *Graph) ContributedQuestions(ctx context.Context, userID string) ([]models.QuestionPreview, error) {
	records, err := g.collect(ctx, "contributed questions", contributedQuery, map[string]any{"userId": userID})
	if err != nil {
		return nil, err
	}
	return previews(records), nil
}

func (g *Graph) AskedQuestions(ctx context.Context, userID string, skip, limit int64) ([]models.QuestionPreview, error) {
	records, err := g.collect(ctx, "asked questions", askedQuery, map[string]any{
		"userId": userID, "skip": skip, "limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return previews(records), nil
}

func (g *Graph) CountAskedQuestions(ctx context.Context, userID string) (int64, error) {
	records, err := g.collect(ctx, "count asked questions", countAskedQuery, map[string]any{"userId": userID})
	if err != nil || len(records) == 0 {
		return 0, err
	}
	n, _ := records[0].Get("n")
	count, _ := n.(int64)
	return count, nil
}

func (g *Graph) TagCoUsages(ctx context.Context, tag string) ([]models.TagCoUsage, error) {
	records, err := g.collect(ctx, "tag co-usages", coUsagesQuery, map[string]any{"tag": tag})
	if err != nil {
		return nil, err
	}
	usages := make([]models.TagCoUsage, 0, len(records))
	for _, rec := range records {
		usages = append(usages, models.TagCoUsage{
			Tag:          stringValue(rec, "tag"),
			CommonUsages: intValue(rec, "commonUsages"),
		})
	}
	return usages, nil
}

func (g *Graph) VoteStats(ctx context.Context, userID string) (models.VoteStats, error) {
	records, err := g.collect(ctx, "vote stats", voteStatsQuery, map[string]any{"userId": userID})
	if err != nil || len(records) == 0 {
		return models.VoteStats{}, err
	}
	rec := records[0]
	return models.VoteStats{
		AnswerUpvotes:    intValue(rec, "answerUp"),
		AnswerDownvotes:  intValue(rec, "answerDown"),
		CommentUpvotes:   intValue(rec, "commentUp"),
		CommentDownvotes: intValue(rec, "commentDown"),
	}, nil
}

func previews(records []*neo4j.Record) []models.QuestionPreview {
	out := make([]models.QuestionPreview, 0, len(records))
	for _, rec := range records {
		p := models.QuestionPreview{
			ID:         stringValue(rec, "id"),
			Title:      stringValue(rec, "title"),
			AuthorID:   stringValue(rec, "authorId"),
			AuthorName: stringValue(rec, "authorName"),
		}
		if v, ok := rec.Get("created"); ok {
			if created, ok := v.(time.Time); ok {
				p.Created = created
			}
		}
		if v, ok := rec.Get("tags"); ok {
			if list, ok := v.([]any); ok {
				for _, t := range list {
					if tag, ok := t.(string); ok {
						p.Tags = append(p.Tags, tag)
					}
				}
			}
		}
		out = append(out, p)
	}
	return out
}

func stringValue(rec *neo4j.Record, key string) string {
	if v, ok := rec.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intValue(rec *neo4j.Record, key string) int64 {
	if v, ok := rec.Get(key); ok {
		if n, ok := v.(int64); ok {
			return n
		}
	}
	return 0
}
