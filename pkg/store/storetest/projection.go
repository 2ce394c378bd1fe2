package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goverflow/goverflow/pkg/models"
	"github.com/goverflow/goverflow/pkg/store"
)

// NodeKey identifies a node in the fake graph.
type NodeKey struct {
	Label store.Label
	ID    string
}

// EdgeKey identifies an edge. Like the real adapter's DeleteEdge, edges are
// matched by endpoint ids and type only.
type EdgeKey struct {
	FromID string
	Rel    store.EdgeType
	ToID   string
}

// Projection is an in-memory store.Projection backed by plain maps. Setting
// WriteErr or ReadErr simulates an unavailable graph store; the Policy field
// mirrors the real adapter's fault handling so bridge behavior under both
// policies can be tested.
type Projection struct {
	mu    sync.Mutex
	nodes map[NodeKey]map[string]any
	edges map[EdgeKey]map[string]any

	Policy   store.FaultPolicy
	WriteErr error
	ReadErr  error
	// Dropped counts writes swallowed by the lenient policy.
	Dropped int
}

func NewProjection() *Projection {
	return &Projection{
		nodes: make(map[NodeKey]map[string]any),
		edges: make(map[EdgeKey]map[string]any),
	}
}

func (g *Projection) failWrite() (bool, error) {
	if g.WriteErr == nil {
		return false, nil
	}
	if g.Policy == store.FaultStrict {
		return true, g.WriteErr
	}
	g.Dropped++
	return true, nil
}

func (g *Projection) MergeNode(_ context.Context, label store.Label, id string, props map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if failed, err := g.failWrite(); failed {
		return err
	}
	key := NodeKey{Label: label, ID: id}
	if g.nodes[key] == nil {
		g.nodes[key] = make(map[string]any)
	}
	for k, v := range props {
		g.nodes[key][k] = v
	}
	return nil
}

func (g *Projection) MergeEdge(_ context.Context, from store.Label, fromID string, rel store.EdgeType, to store.Label, toID string, props map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if failed, err := g.failWrite(); failed {
		return err
	}
	for _, key := range []NodeKey{{Label: from, ID: fromID}, {Label: to, ID: toID}} {
		if g.nodes[key] == nil {
			g.nodes[key] = make(map[string]any)
		}
	}
	key := EdgeKey{FromID: fromID, Rel: rel, ToID: toID}
	if g.edges[key] == nil {
		g.edges[key] = make(map[string]any)
	}
	for k, v := range props {
		g.edges[key][k] = v
	}
	return nil
}

func (g *Projection) DeleteEdge(_ context.Context, fromID string, rel store.EdgeType, toID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if failed, err := g.failWrite(); failed {
		return err
	}
	delete(g.edges, EdgeKey{FromID: fromID, Rel: rel, ToID: toID})
	return nil
}

func (g *Projection) ClearAll(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.WriteErr != nil {
		return g.WriteErr
	}
	g.nodes = make(map[NodeKey]map[string]any)
	g.edges = make(map[EdgeKey]map[string]any)
	return nil
}

func (g *Projection) Close(context.Context) error { return nil }

// HasNode reports whether the node exists.
func (g *Projection) HasNode(label store.Label, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.nodes[NodeKey{Label: label, ID: id}]
	return ok
}

// HasEdge reports whether the edge exists.
func (g *Projection) HasEdge(fromID string, rel store.EdgeType, toID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.edges[EdgeKey{FromID: fromID, Rel: rel, ToID: toID}]
	return ok
}

// EdgeProps returns a copy of the edge's properties, or nil.
func (g *Projection) EdgeProps(fromID string, rel store.EdgeType, toID string) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	props, ok := g.edges[EdgeKey{FromID: fromID, Rel: rel, ToID: toID}]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// NodeProps returns a copy of the node's properties, or nil.
func (g *Projection) NodeProps(label store.Label, id string) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	props, ok := g.nodes[NodeKey{Label: label, ID: id}]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// Dump returns deep copies of the node and edge maps, for comparing whole
// graph states.
func (g *Projection) Dump() (map[NodeKey]map[string]any, map[EdgeKey]map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	nodes := make(map[NodeKey]map[string]any, len(g.nodes))
	for k, props := range g.nodes {
		cp := make(map[string]any, len(props))
		for pk, pv := range props {
			cp[pk] = pv
		}
		nodes[k] = cp
	}
	edges := make(map[EdgeKey]map[string]any, len(g.edges))
	for k, props := range g.edges {
		cp := make(map[string]any, len(props))
		for pk, pv := range props {
			cp[pk] = pv
		}
		edges[k] = cp
	}
	return nodes, edges
}

func (g *Projection) failRead() (bool, error) {
	if g.ReadErr == nil {
		return false, nil
	}
	if g.Policy == store.FaultStrict {
		return true, g.ReadErr
	}
	return true, nil
}

// edgesOut collects target ids of typed edges leaving a node.
func (g *Projection) edgesOut(fromID string, rel store.EdgeType) []string {
	var out []string
	for key := range g.edges {
		if key.FromID == fromID && key.Rel == rel {
			out = append(out, key.ToID)
		}
	}
	sort.Strings(out)
	return out
}

// edgesIn collects source ids of typed edges entering a node.
func (g *Projection) edgesIn(toID string, rel store.EdgeType) []string {
	var out []string
	for key := range g.edges {
		if key.ToID == toID && key.Rel == rel {
			out = append(out, key.FromID)
		}
	}
	sort.Strings(out)
	return out
}

func (g *Projection) preview(questionID string) models.QuestionPreview {
	p := models.QuestionPreview{ID: questionID}
	if props := g.nodes[NodeKey{Label: store.LabelQuestion, ID: questionID}]; props != nil {
		p.Title, _ = props["title"].(string)
		p.Created, _ = props["created"].(time.Time)
	}
	p.Tags = g.edgesOut(questionID, store.EdgeAbout)
	if authors := g.edgesIn(questionID, store.EdgeAsked); len(authors) > 0 {
		p.AuthorID = authors[0]
		if props := g.nodes[NodeKey{Label: store.LabelUser, ID: p.AuthorID}]; props != nil {
			p.AuthorName, _ = props["name"].(string)
		}
	}
	return p
}

func sortPreviews(out []models.QuestionPreview) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.After(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
}

func (g *Projection) ContributedQuestions(_ context.Context, userID string) ([]models.QuestionPreview, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if failed, err := g.failRead(); failed {
		return nil, err
	}

	asked := make(map[string]bool)
	for _, q := range g.edgesOut(userID, store.EdgeAsked) {
		asked[q] = true
	}

	contributed := make(map[string]bool)
	for _, answerID := range g.edgesOut(userID, store.EdgeWrote) {
		for _, q := range g.edgesOut(answerID, store.EdgeAnswered) {
			contributed[q] = true
		}
	}
	for _, commentID := range g.edgesOut(userID, store.EdgeCommented) {
		for _, target := range g.edgesOut(commentID, store.EdgeRefersTo) {
			if _, ok := g.nodes[NodeKey{Label: store.LabelQuestion, ID: target}]; ok {
				contributed[target] = true
				continue
			}
			for _, q := range g.edgesOut(target, store.EdgeAnswered) {
				contributed[q] = true
			}
		}
	}

	var out []models.QuestionPreview
	for q := range contributed {
		if !asked[q] {
			out = append(out, g.preview(q))
		}
	}
	sortPreviews(out)
	return out, nil
}

func (g *Projection) AskedQuestions(_ context.Context, userID string, skip, limit int64) ([]models.QuestionPreview, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if failed, err := g.failRead(); failed {
		return nil, err
	}
	var out []models.QuestionPreview
	for _, q := range g.edgesOut(userID, store.EdgeAsked) {
		out = append(out, g.preview(q))
	}
	sortPreviews(out)
	if skip > 0 {
		if skip >= int64(len(out)) {
			return nil, nil
		}
		out = out[skip:]
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *Projection) CountAskedQuestions(_ context.Context, userID string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if failed, err := g.failRead(); failed {
		return 0, err
	}
	return int64(len(g.edgesOut(userID, store.EdgeAsked))), nil
}

func (g *Projection) TagCoUsages(_ context.Context, tag string) ([]models.TagCoUsage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if failed, err := g.failRead(); failed {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, q := range g.edgesIn(tag, store.EdgeAbout) {
		for _, other := range g.edgesOut(q, store.EdgeAbout) {
			if other != tag {
				counts[other]++
			}
		}
	}
	out := make([]models.TagCoUsage, 0, len(counts))
	for t, n := range counts {
		out = append(out, models.TagCoUsage{Tag: t, CommonUsages: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommonUsages != out[j].CommonUsages {
			return out[i].CommonUsages > out[j].CommonUsages
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

func (g *Projection) VoteStats(_ context.Context, userID string) (models.VoteStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if failed, err := g.failRead(); failed {
		return models.VoteStats{}, err
	}
	var stats models.VoteStats
	count := func(targetID string, up, down *int64) {
		for _, voter := range g.edgesIn(targetID, store.EdgeVoted) {
			props := g.edges[EdgeKey{FromID: voter, Rel: store.EdgeVoted, ToID: targetID}]
			if useful, _ := props["useful"].(bool); useful {
				*up++
			} else {
				*down++
			}
		}
	}
	for _, answerID := range g.edgesOut(userID, store.EdgeWrote) {
		count(answerID, &stats.AnswerUpvotes, &stats.AnswerDownvotes)
	}
	for _, commentID := range g.edgesOut(userID, store.EdgeCommented) {
		count(commentID, &stats.CommentUpvotes, &stats.CommentDownvotes)
	}
	return stats, nil
}
