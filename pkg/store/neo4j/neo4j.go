// Package neo4j implements the graph projection store on Neo4j.
//
// All mutations are Cypher MERGE statements keyed by the id property, so
// replaying a write is harmless and edges can be merged before their
// endpoints carry real properties. What a failed operation does is decided
// by the store.FaultPolicy given at construction: lenient adapters log and
// carry on, strict adapters surface the failure.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/goverflow/goverflow/pkg/store"
)

// Graph is the Neo4j-backed projection store.
type Graph struct {
	driver   neo4j.DriverWithContext
	database string
	policy   store.FaultPolicy
	log      zerolog.Logger
}

// New connects to Neo4j, verifies connectivity and ensures the per-label
// unique id constraints the merges key on.
func New(ctx context.Context, uri, username, password string, policy store.FaultPolicy, log zerolog.Logger) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	g := &Graph{
		driver:   driver,
		database: "neo4j",
		policy:   policy,
		log:      log,
	}
	if err := g.ensureConstraints(ctx); err != nil {
		return nil, err
	}
	g.log.Info().Str("policy", policy.String()).Msg("connected to projection store")
	return g, nil
}

func (g *Graph) ensureConstraints(ctx context.Context) error {
	for _, label := range []store.Label{
		store.LabelUser, store.LabelQuestion, store.LabelAnswer, store.LabelComment, store.LabelTag,
	} {
		query := fmt.Sprintf(
			"CREATE CONSTRAINT %s_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			toConstraintName(label), label,
		)
		if err := g.write(ctx, query, nil); err != nil {
			return fmt.Errorf("ensure %s constraint: %w", label, err)
		}
	}
	return nil
}

func toConstraintName(label store.Label) string {
	name := make([]byte, len(label))
	for i := 0; i < len(label); i++ {
		c := label[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		name[i] = c
	}
	return string(name)
}

// write runs a single Cypher statement in a write transaction.
func (g *Graph) write(ctx context.Context, query string, params map[string]any) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

// mutate applies the fault policy to a write. Lenient mode trades graph
// freshness for availability; the drift is repaired by the next full
// resynchronization.
func (g *Graph) mutate(ctx context.Context, op, query string, params map[string]any) error {
	err := g.write(ctx, query, params)
	if err == nil {
		return nil
	}
	if g.policy == store.FaultStrict {
		return fmt.Errorf("%s: %w", op, err)
	}
	g.log.Warn().Err(err).Str("op", op).Msg("projection write failed, continuing")
	return nil
}

// collect runs a read query and gathers all records. Under the lenient
// policy a failed read degrades to an empty result.
func (g *Graph) collect(ctx context.Context, op, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: g.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		if g.policy == store.FaultStrict {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		g.log.Warn().Err(err).Str("op", op).Msg("projection read failed, returning empty result")
		return nil, nil
	}
	return records.([]*neo4j.Record), nil
}

func (g *Graph) MergeNode(ctx context.Context, label store.Label, id string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", label)
	return g.mutate(ctx, "merge "+string(label), query, map[string]any{"id": id, "props": props})
}

func (g *Graph) MergeEdge(ctx context.Context, from store.Label, fromID string, rel store.EdgeType, to store.Label, toID string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}
	query := fmt.Sprintf(
		"MERGE (a:%s {id: $from}) MERGE (b:%s {id: $to}) MERGE (a)-[r:%s]->(b) SET r += $props",
		from, to, rel,
	)
	return g.mutate(ctx, "merge "+string(rel), query, map[string]any{
		"from": fromID, "to": toID, "props": props,
	})
}

func (g *Graph) DeleteEdge(ctx context.Context, fromID string, rel store.EdgeType, toID string) error {
	query := fmt.Sprintf("MATCH (a {id: $from})-[r:%s]->(b {id: $to}) DELETE r", rel)
	return g.mutate(ctx, "delete "+string(rel), query, map[string]any{"from": fromID, "to": toID})
}

// ClearAll wipes the projection. Failures always propagate regardless of
// policy: replaying onto a half-cleared graph would leave stale facts the
// merges never touch.
func (g *Graph) ClearAll(ctx context.Context) error {
	if err := g.write(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
		return fmt.Errorf("clear projection: %w", err)
	}
	return nil
}

func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}
