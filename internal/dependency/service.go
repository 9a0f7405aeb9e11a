// Package dependency builds and queries the task dependency DAG: edge
// validation with cycle detection, topological ordering via Kahn's
// algorithm, and critical-path calculation. The derived graph is
// cached for a short window since it's rebuilt from every edge on
// each full scan.
package dependency

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
)

const cacheTTL = 5 * time.Minute

// Service owns dependency-edge mutation and derived-graph queries.
type Service struct {
	deps  *repo.DependencyRepository
	tasks *repo.TaskRepository

	mu       sync.RWMutex
	cached   *domain.DependencyGraph
	cachedAt time.Time
}

// NewService builds a dependency Service over the given repositories.
func NewService(deps *repo.DependencyRepository, tasks *repo.TaskRepository) *Service {
	return &Service{deps: deps, tasks: tasks}
}

// AddDependency validates and inserts a predecessor->successor edge,
// rejecting it if either task is missing, the edge already exists, or
// it would introduce a cycle.
func (s *Service) AddDependency(ctx context.Context, predecessorID, successorID string, kind domain.DependencyKind) (string, error) {
	validation, err := s.ValidateDependency(ctx, predecessorID, successorID)
	if err != nil {
		return "", err
	}
	if !validation.IsValid {
		msg := validation.ErrorMessage
		if msg == "" {
			msg = "invalid dependency"
		}
		return "", apperr.NewValidation(msg)
	}

	if kind == "" {
		kind = domain.DependencyFinishToStart
	}
	edge := &domain.TaskDependency{
		PredecessorID: predecessorID,
		SuccessorID:   successorID,
		Kind:          kind,
	}
	if err := s.deps.Create(ctx, edge); err != nil {
		return "", err
	}
	s.invalidateCache()
	return edge.ID, nil
}

// RemoveDependency deletes an edge by id.
func (s *Service) RemoveDependency(ctx context.Context, id string) error {
	if err := s.deps.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCache()
	return nil
}

// UpdateDependencyType changes an existing edge's temporal relationship.
func (s *Service) UpdateDependencyType(ctx context.Context, id string, kind domain.DependencyKind) error {
	if !domain.ValidDependencyKind(kind) {
		return apperr.NewValidation("invalid dependency type: %s", kind)
	}
	if err := s.deps.UpdateKind(ctx, id, kind); err != nil {
		return err
	}
	s.invalidateCache()
	return nil
}

// ValidateDependency dry-runs adding predecessor->successor, reporting
// whether it would be accepted and why not if not.
func (s *Service) ValidateDependency(ctx context.Context, predecessorID, successorID string) (*domain.ValidationResult, error) {
	if _, err := s.tasks.Get(ctx, predecessorID); err != nil {
		if apperr.IsNotFound(err) {
			return &domain.ValidationResult{ErrorMessage: "predecessor task " + predecessorID + " not found"}, nil
		}
		return nil, err
	}
	if _, err := s.tasks.Get(ctx, successorID); err != nil {
		if apperr.IsNotFound(err) {
			return &domain.ValidationResult{ErrorMessage: "successor task " + successorID + " not found"}, nil
		}
		return nil, err
	}

	exists, err := s.deps.Exists(ctx, predecessorID, successorID)
	if err != nil {
		return nil, err
	}
	if exists {
		return &domain.ValidationResult{ErrorMessage: "dependency already exists"}, nil
	}

	if predecessorID == successorID {
		return &domain.ValidationResult{
			ErrorMessage:     "task cannot depend on itself",
			WouldCreateCycle: true,
			CyclePath:        []string{predecessorID},
		}, nil
	}

	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if cycle := detectCycleWithNewEdge(graph, predecessorID, successorID); cycle != nil {
		return &domain.ValidationResult{
			ErrorMessage:     "adding this dependency would create a circular dependency",
			WouldCreateCycle: true,
			CyclePath:        cycle,
		}, nil
	}

	return &domain.ValidationResult{IsValid: true}, nil
}

// TaskDependencies returns every edge touching taskID as predecessor or successor.
func (s *Service) TaskDependencies(ctx context.Context, taskID string) ([]domain.TaskDependency, error) {
	return s.deps.ListForTask(ctx, taskID)
}

// AllDependencies returns every edge in the system.
func (s *Service) AllDependencies(ctx context.Context) ([]domain.TaskDependency, error) {
	return s.deps.ListAll(ctx)
}

// DependencyByID fetches a single edge.
func (s *Service) DependencyByID(ctx context.Context, id string) (*domain.TaskDependency, error) {
	return s.deps.GetByID(ctx, id)
}

// ReadyTasks returns tasks with no incomplete predecessor.
func (s *Service) ReadyTasks(ctx context.Context) ([]repo.ReadyTask, error) {
	return s.deps.ReadyTasks(ctx)
}

// CriticalPath returns the longest dependency chain ending at goalTaskID.
func (s *Service) CriticalPath(ctx context.Context, goalTaskID string) ([]string, error) {
	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := graph.Nodes[goalTaskID]; !ok {
		return nil, apperr.NewNotFound("task", goalTaskID)
	}
	return criticalPathToGoal(graph, goalTaskID), nil
}

// Graph returns the complete dependency graph, serving a cached copy
// when it was built less than cacheTTL ago.
func (s *Service) Graph(ctx context.Context) (*domain.DependencyGraph, error) {
	s.mu.RLock()
	if s.cached != nil && time.Since(s.cachedAt) < cacheTTL {
		cached := s.cached
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	graph, err := s.buildGraph(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = graph
	s.cachedAt = time.Now()
	s.mu.Unlock()

	return graph, nil
}

func (s *Service) invalidateCache() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Service) buildGraph(ctx context.Context) (*domain.DependencyGraph, error) {
	tasks, err := s.tasks.List(ctx, "")
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*domain.DependencyNode, len(tasks))
	statuses := make(map[string]domain.Status, len(tasks))
	for _, t := range tasks {
		nodes[t.ID] = &domain.DependencyNode{TaskID: t.ID}
		statuses[t.ID] = t.Status
	}

	edges, err := s.deps.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var included []domain.TaskDependency
	for _, edge := range edges {
		predecessor, okP := nodes[edge.PredecessorID]
		successor, okS := nodes[edge.SuccessorID]
		if !okP || !okS {
			continue
		}
		predecessor.Dependents = append(predecessor.Dependents, edge.SuccessorID)
		successor.Predecessors = append(successor.Predecessors, edge.PredecessorID)
		included = append(included, edge)
	}

	for _, node := range nodes {
		node.Ready = true
		for _, predID := range node.Predecessors {
			if statuses[predID] != domain.StatusDone {
				node.Ready = false
				break
			}
		}
	}

	order, err := topologicalSort(nodes, included)
	if err != nil {
		return nil, err
	}
	critical := criticalPath(nodes, included, order)

	return &domain.DependencyGraph{
		Nodes:            nodes,
		Edges:            included,
		TopologicalOrder: order,
		CriticalPath:     critical,
	}, nil
}

// topologicalSort runs Kahn's algorithm; a result shorter than len(nodes)
// means the edge set contains a cycle.
func topologicalSort(nodes map[string]*domain.DependencyNode, edges []domain.TaskDependency) ([]string, error) {
	inDegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for id := range nodes {
		inDegree[id] = 0
		adj[id] = nil
	}
	for _, edge := range edges {
		adj[edge.PredecessorID] = append(adj[edge.PredecessorID], edge.SuccessorID)
		inDegree[edge.SuccessorID]++
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		var freed []string
		for _, next := range adj[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				freed = append(freed, next)
			}
		}
		sort.Strings(freed)
		queue = append(queue, freed...)
	}

	if len(order) != len(nodes) {
		return nil, apperr.NewValidation("circular dependency detected in graph")
	}
	return order, nil
}

// criticalPath finds the longest chain through the whole graph via
// dynamic programming over the topological order, processed in
// reverse so each node's distance accounts for all its dependents.
func criticalPath(nodes map[string]*domain.DependencyNode, edges []domain.TaskDependency, order []string) []string {
	if len(nodes) == 0 {
		return nil
	}

	reverseAdj := make(map[string][]string, len(nodes))
	for id := range nodes {
		reverseAdj[id] = nil
	}
	for _, edge := range edges {
		reverseAdj[edge.SuccessorID] = append(reverseAdj[edge.SuccessorID], edge.PredecessorID)
	}

	distances := make(map[string]int, len(nodes))
	predecessors := make(map[string]string, len(nodes))
	for id := range nodes {
		distances[id] = 0
	}

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		for _, depID := range reverseAdj[id] {
			candidate := distances[id] + 1
			if candidate > distances[depID] {
				distances[depID] = candidate
				predecessors[depID] = id
			}
		}
	}

	var endNode string
	maxDistance := -1
	for _, id := range order {
		if distances[id] > maxDistance {
			maxDistance = distances[id]
			endNode = id
		}
	}
	if endNode == "" {
		return nil
	}

	var path []string
	for current := endNode; current != ""; {
		path = append(path, current)
		next, ok := predecessors[current]
		if !ok {
			break
		}
		current = next
	}
	return path
}

// criticalPathToGoal finds the longest chain ending at goalTaskID by
// walking backwards from it over predecessor edges.
func criticalPathToGoal(graph *domain.DependencyGraph, goalTaskID string) []string {
	reverseAdj := make(map[string][]string, len(graph.Nodes))
	for id := range graph.Nodes {
		reverseAdj[id] = nil
	}
	for _, edge := range graph.Edges {
		reverseAdj[edge.SuccessorID] = append(reverseAdj[edge.SuccessorID], edge.PredecessorID)
	}

	distances := map[string]int{goalTaskID: 0}
	predecessors := map[string]string{}
	visited := map[string]bool{}
	queue := []string{goalTaskID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, depID := range reverseAdj[current] {
			candidate := distances[current] + 1
			if candidate > distances[depID] {
				distances[depID] = candidate
				predecessors[depID] = current
				queue = append(queue, depID)
			}
		}
	}

	hasSuccessor := map[string]bool{}
	for _, edge := range graph.Edges {
		hasSuccessor[edge.SuccessorID] = true
	}

	ids := make([]string, 0, len(distances))
	for id := range distances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	startNode := ""
	maxDistance := -1
	for _, id := range ids {
		distance := distances[id]
		if hasSuccessor[id] {
			continue
		}
		if distance > maxDistance {
			maxDistance = distance
			startNode = id
		}
	}
	if startNode == "" {
		return []string{goalTaskID}
	}

	forward := make(map[string]string, len(predecessors))
	for node, pred := range predecessors {
		forward[pred] = node
	}

	var path []string
	for current := startNode; ; {
		path = append(path, current)
		if current == goalTaskID {
			break
		}
		next, ok := forward[current]
		if !ok {
			break
		}
		current = next
	}
	return path
}

// detectCycleWithNewEdge runs DFS cycle detection over the graph's
// edges plus one hypothetical new edge.
func detectCycleWithNewEdge(graph *domain.DependencyGraph, newPredecessor, newSuccessor string) []string {
	adj := make(map[string][]string, len(graph.Nodes))
	for id := range graph.Nodes {
		adj[id] = nil
	}
	for _, edge := range graph.Edges {
		adj[edge.PredecessorID] = append(adj[edge.PredecessorID], edge.SuccessorID)
	}
	adj[newPredecessor] = append(adj[newPredecessor], newSuccessor)

	visited := map[string]bool{}
	recStack := map[string]bool{}

	ids := make([]string, 0, len(graph.Nodes))
	for id := range graph.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if visited[id] {
			continue
		}
		var path []string
		if cycle := dfsCycleDetect(id, adj, visited, recStack, &path); cycle != nil {
			return cycle
		}
	}
	return nil
}

func dfsCycleDetect(node string, adj map[string][]string, visited, recStack map[string]bool, path *[]string) []string {
	visited[node] = true
	recStack[node] = true
	*path = append(*path, node)

	for _, neighbor := range adj[node] {
		if !visited[neighbor] {
			if cycle := dfsCycleDetect(neighbor, adj, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[neighbor] {
			startIdx := indexOf(*path, neighbor)
			cycle := append([]string{}, (*path)[startIdx:]...)
			return append(cycle, neighbor)
		}
	}

	recStack[node] = false
	*path = (*path)[:len(*path)-1]
	return nil
}

func indexOf(path []string, target string) int {
	for i, v := range path {
		if v == target {
			return i
		}
	}
	return -1
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
