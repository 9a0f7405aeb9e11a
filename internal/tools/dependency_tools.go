package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/dependency"
	"github.com/antigravity-dev/cognicore/internal/domain"
)

// RegisterDependencyTools wires get_dependency_graph, get_task_dependencies,
// add_task_dependency, remove_task_dependency, get_ready_tasks,
// get_critical_path, validate_dependency and get_dependency_metrics against
// svc.
func RegisterDependencyTools(reg *Registry, svc *dependency.Service) error {
	registrations := []struct {
		name, description string
		schema            string
		handler           Handler
	}{
		{
			"get_dependency_graph",
			"Get the complete dependency graph for all tasks, including topological order and critical path.",
			`{"type":"object","properties":{
				"task_filter":{"type":"array","items":{"type":"string"},"description":"Optional filter to specific tasks"}
			}}`,
			getDependencyGraphHandler(svc),
		},
		{
			"get_task_dependencies",
			"Get dependency edges touching specific tasks. Use when asked what a task depends on or what depends on it.",
			`{"type":"object","properties":{
				"task_ids":{"type":"array","items":{"type":"string"},"description":"List of task IDs to get dependencies for (required)"}
			},"required":["task_ids"]}`,
			getTaskDependenciesHandler(svc),
		},
		{
			"add_task_dependency",
			"Add a dependency relationship between tasks, e.g. 'A must finish before B starts'. Validates for cycles.",
			`{"type":"object","properties":{
				"predecessor_id":{"type":"string","description":"ID of the predecessor task (required)"},
				"successor_id":{"type":"string","description":"ID of the successor task (required)"},
				"dependency_type":{"type":"string","enum":["finish_to_start","start_to_start","finish_to_finish","start_to_finish"],"description":"Type of dependency relationship (default: finish_to_start)"}
			},"required":["predecessor_id","successor_id"]}`,
			addTaskDependencyHandler(svc),
		},
		{
			"remove_task_dependency",
			"Remove an existing dependency relationship between tasks.",
			`{"type":"object","properties":{
				"dependency_id":{"type":"string","description":"ID of the dependency to remove (required)"}
			},"required":["dependency_id"]}`,
			removeTaskDependencyHandler(svc),
		},
		{
			"get_ready_tasks",
			"Get tasks ready to execute (all dependencies satisfied). Use for 'what can I work on next?'.",
			`{"type":"object","properties":{
				"limit":{"type":"integer","description":"Maximum number of ready tasks to return (default 10)"}
			}}`,
			getReadyTasksHandler(svc),
		},
		{
			"get_critical_path",
			"Get the critical path analysis, either overall or for a specific task.",
			`{"type":"object","properties":{
				"task_id":{"type":"string","description":"Task ID to analyze the critical path ending at (optional)"}
			}}`,
			getCriticalPathHandler(svc),
		},
		{
			"validate_dependency",
			"Validate whether a dependency relationship would be accepted before creating it. Checks for cycles and missing tasks.",
			`{"type":"object","properties":{
				"predecessor_id":{"type":"string","description":"ID of the predecessor task (required)"},
				"successor_id":{"type":"string","description":"ID of the successor task (required)"}
			},"required":["predecessor_id","successor_id"]}`,
			validateDependencyHandler(svc),
		},
		{
			"get_dependency_metrics",
			"Get dependency density and workflow metrics across all tasks.",
			`{"type":"object"}`,
			getDependencyMetricsHandler(svc),
		},
	}

	for _, r := range registrations {
		if err := reg.Register(r.name, r.description, json.RawMessage(r.schema), r.handler); err != nil {
			return err
		}
	}
	return nil
}

func getDependencyGraphHandler(svc *dependency.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			TaskFilter []string `json:"task_filter"`
		}
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &params); err != nil {
				return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
			}
		}

		graph, err := svc.Graph(ctx)
		if err != nil {
			return nil, err
		}

		nodes := graph.Nodes
		if len(params.TaskFilter) > 0 {
			wanted := make(map[string]bool, len(params.TaskFilter))
			for _, id := range params.TaskFilter {
				wanted[id] = true
			}
			nodes = make(map[string]*domain.DependencyNode)
			for id, node := range graph.Nodes {
				if wanted[id] {
					nodes[id] = node
				}
			}
		}

		readyCount := 0
		for _, node := range nodes {
			if node.Ready {
				readyCount++
			}
		}

		return map[string]any{
			"success": true,
			"graph": map[string]any{
				"nodes":             nodes,
				"edges":             graph.Edges,
				"topological_order": graph.TopologicalOrder,
				"critical_path":     graph.CriticalPath,
			},
			"summary": fmt.Sprintf("Dependency graph: %d task(s), %d dependency edge(s), %d ready task(s), critical path length %d.",
				len(nodes), len(graph.Edges), readyCount, len(graph.CriticalPath)),
			"metrics": map[string]any{
				"total_tasks":           len(nodes),
				"total_dependencies":    len(graph.Edges),
				"ready_tasks":           readyCount,
				"critical_path_length":  len(graph.CriticalPath),
			},
		}, nil
	}
}

func getTaskDependenciesHandler(svc *dependency.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			TaskIDs []string `json:"task_ids"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		seen := make(map[string]domain.TaskDependency)
		for _, taskID := range params.TaskIDs {
			deps, err := svc.TaskDependencies(ctx, taskID)
			if err != nil {
				return nil, err
			}
			for _, d := range deps {
				seen[d.ID] = d
			}
		}

		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		deps := make([]domain.TaskDependency, 0, len(ids))
		var lines []string
		for _, id := range ids {
			d := seen[id]
			deps = append(deps, d)
			lines = append(lines, fmt.Sprintf("%s -> %s (%s)", d.PredecessorID, d.SuccessorID, strings.ReplaceAll(string(d.Kind), "_", " ")))
		}

		summary := fmt.Sprintf("Dependency analysis for %d task(s):\n\n", len(params.TaskIDs))
		if len(deps) == 0 {
			summary += "No dependencies found for the selected tasks."
		} else {
			summary += strings.Join(lines, "\n")
		}

		return map[string]any{
			"success":      true,
			"task_ids":     params.TaskIDs,
			"dependencies": deps,
			"summary":      summary,
			"count":        len(deps),
		}, nil
	}
}

func addTaskDependencyHandler(svc *dependency.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			PredecessorID  string `json:"predecessor_id"`
			SuccessorID    string `json:"successor_id"`
			DependencyType string `json:"dependency_type"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}
		predecessorID := strings.TrimSpace(params.PredecessorID)
		successorID := strings.TrimSpace(params.SuccessorID)
		if predecessorID == "" || successorID == "" {
			return nil, apperr.NewValidation("predecessor_id and successor_id are both required")
		}

		kind := domain.DependencyFinishToStart
		if params.DependencyType != "" {
			kind = domain.DependencyKind(params.DependencyType)
			if !domain.ValidDependencyKind(kind) {
				return nil, apperr.NewValidation("invalid dependency_type %q; expected one of finish_to_start, start_to_start, finish_to_finish, start_to_finish", params.DependencyType)
			}
		}

		id, err := svc.AddDependency(ctx, predecessorID, successorID, kind)
		if err != nil {
			return nil, err
		}
		dep, err := svc.DependencyByID(ctx, id)
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"success":       true,
			"dependency_id": id,
			"dependency":    dep,
			"message": fmt.Sprintf("Created dependency: %s -> %s (%s)",
				dep.PredecessorID, dep.SuccessorID, strings.ReplaceAll(string(dep.Kind), "_", " ")),
		}, nil
	}
}

func removeTaskDependencyHandler(svc *dependency.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			DependencyID string `json:"dependency_id"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		if err := svc.RemoveDependency(ctx, params.DependencyID); err != nil {
			return nil, err
		}

		return map[string]any{
			"success":       true,
			"dependency_id": params.DependencyID,
			"message":       fmt.Sprintf("Removed dependency %s", params.DependencyID),
		}, nil
	}
}

func getReadyTasksHandler(svc *dependency.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			Limit int `json:"limit"`
		}
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &params); err != nil {
				return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
			}
		}
		limit := params.Limit
		if limit <= 0 {
			limit = 10
		}

		ready, err := svc.ReadyTasks(ctx)
		if err != nil {
			return nil, err
		}
		if len(ready) > limit {
			ready = ready[:limit]
		}

		var lines []string
		for _, t := range ready {
			line := fmt.Sprintf("[%s] %s", strings.ToUpper(string(t.Status)), t.Title)
			if t.DueAt != nil {
				line += " (has a due date)"
			}
			lines = append(lines, line)
		}

		summary := fmt.Sprintf("Ready tasks (showing %d):\n\n", len(ready))
		if len(ready) == 0 {
			summary += "Everything is done, or nothing currently satisfies its dependencies."
		} else {
			summary += strings.Join(lines, "\n")
		}

		return map[string]any{
			"success": true,
			"tasks":   ready,
			"summary": summary,
			"count":   len(ready),
		}, nil
	}
}

func getCriticalPathHandler(svc *dependency.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			TaskID string `json:"task_id"`
		}
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &params); err != nil {
				return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
			}
		}

		var path []string
		var analysis string
		if params.TaskID != "" {
			p, err := svc.CriticalPath(ctx, params.TaskID)
			if err != nil {
				return nil, err
			}
			path = p
			analysis = fmt.Sprintf("Critical path to task %s (%d task(s)): %s", params.TaskID, len(path), strings.Join(path, " -> "))
		} else {
			graph, err := svc.Graph(ctx)
			if err != nil {
				return nil, err
			}
			path = graph.CriticalPath
		}

		summary := fmt.Sprintf("Critical path length: %d task(s). Tasks: %s", len(path), strings.Join(path, ", "))
		if analysis != "" {
			summary = analysis + "\n\n" + summary
		}

		return map[string]any{
			"success":       true,
			"critical_path": path,
			"analysis":      analysis,
			"summary":       summary,
			"metrics": map[string]any{
				"path_length": len(path),
				"task_count":  len(path),
			},
		}, nil
	}
}

func validateDependencyHandler(svc *dependency.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			PredecessorID string `json:"predecessor_id"`
			SuccessorID   string `json:"successor_id"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		validation, err := svc.ValidateDependency(ctx, params.PredecessorID, params.SuccessorID)
		if err != nil {
			return nil, err
		}

		var summary string
		switch {
		case validation.IsValid:
			summary = fmt.Sprintf("Dependency is valid: %s -> %s", params.PredecessorID, params.SuccessorID)
		case validation.WouldCreateCycle:
			summary = fmt.Sprintf("Would create a circular dependency via: %s", strings.Join(validation.CyclePath, " -> "))
		default:
			summary = "Invalid dependency: " + validation.ErrorMessage
		}

		return map[string]any{
			"success":             true,
			"validation":          validation,
			"summary":             summary,
			"is_valid":            validation.IsValid,
			"would_create_cycle":  validation.WouldCreateCycle,
		}, nil
	}
}

func getDependencyMetricsHandler(svc *dependency.Service) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		graph, err := svc.Graph(ctx)
		if err != nil {
			return nil, err
		}

		totalTasks := len(graph.Nodes)
		totalDependencies := len(graph.Edges)
		readyTasks := 0
		blockedTasks := 0
		for _, node := range graph.Nodes {
			if node.Ready {
				readyTasks++
			} else {
				blockedTasks++
			}
		}

		var maxPossible int
		if totalTasks > 1 {
			maxPossible = totalTasks * (totalTasks - 1)
		}
		density := 0.0
		if maxPossible > 0 {
			density = float64(totalDependencies) / float64(maxPossible) * 100
		}
		avgPerTask := 0.0
		if totalTasks > 0 {
			avgPerTask = float64(totalDependencies) / float64(totalTasks)
		}

		note := "Dependency density is moderate."
		switch {
		case density > 50:
			note = "Dependency relationships are complex; consider simplifying the workflow."
		case density < 10:
			note = "Few dependencies are defined; coordination may be missing."
		}

		metrics := map[string]any{
			"total_tasks":                  totalTasks,
			"total_dependencies":           totalDependencies,
			"ready_tasks":                  readyTasks,
			"blocked_tasks":                blockedTasks,
			"dependency_density_percent":   density,
			"average_dependencies_per_task": avgPerTask,
			"critical_path_length":         len(graph.CriticalPath),
		}

		summary := fmt.Sprintf(
			"Dependency metrics:\n\n- Tasks: %d\n- Dependencies: %d\n- Ready: %d\n- Blocked: %d\n- Critical path length: %d\n- Density: %.1f%%\n- Average dependencies per task: %.1f\n\n%s",
			totalTasks, totalDependencies, readyTasks, blockedTasks, len(graph.CriticalPath), density, avgPerTask, note,
		)

		return map[string]any{
			"success": true,
			"metrics": metrics,
			"summary": summary,
		}, nil
	}
}
