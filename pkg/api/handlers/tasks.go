// Package handlers holds the admin HTTP API's gin.HandlerFuncs, backed by
// an *orchestrator.Registry (SPEC_FULL.md §4.11), in the same thin
// handler-per-route shape as infra-core's original pkg/api/handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/last-emo-boy/infra-core/pkg/orchestrator"
)

// TaskHandlers binds admin routes to a Registry.
type TaskHandlers struct {
	registry *orchestrator.Registry
}

// NewTaskHandlers constructs TaskHandlers backed by registry.
func NewTaskHandlers(registry *orchestrator.Registry) *TaskHandlers {
	return &TaskHandlers{registry: registry}
}

// ListTasks returns every supervised task's current status.
func (h *TaskHandlers) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tasks": h.registry.GetStatus(),
	})
}

// GetTask returns one task's current status, 404 if unknown.
func (h *TaskHandlers) GetTask(c *gin.Context) {
	taskID := c.Param("id")

	status, ok := h.registry.GetTaskStatus(taskID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// PauseTask gates the named task's supervisor so no further probes are
// dispatched until resumed.
func (h *TaskHandlers) PauseTask(c *gin.Context) {
	taskID := c.Param("id")

	if err := h.registry.PauseTask(taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "paused": true})
}

// ResumeTask clears the named task's pause gate.
func (h *TaskHandlers) ResumeTask(c *gin.Context) {
	taskID := c.Param("id")

	if err := h.registry.ResumeTask(taskID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "paused": false})
}
