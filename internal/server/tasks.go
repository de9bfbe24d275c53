package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"todotracker/internal/models"
	"todotracker/internal/query"
)

type taskRequest struct {
	TodoID      *string `json:"todoId"`
	Creator     *string `json:"creator"`
	Assigned    *string `json:"assigned"`
	Status      *string `json:"status"`
	Due         *string `json:"due"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// update converts the request into a write payload. Status is matched
// case-insensitively; due accepts RFC 3339 timestamps or calendar days.
func (r taskRequest) update(id string) (models.TaskUpdate, error) {
	u := models.TaskUpdate{
		ID:          id,
		TodoID:      r.TodoID,
		Creator:     r.Creator,
		Assigned:    r.Assigned,
		Title:       r.Title,
		Description: r.Description,
	}
	if r.Status != nil {
		status, err := models.ParseStatus(*r.Status)
		if err != nil {
			return models.TaskUpdate{}, &query.MalformedInputError{
				Param:   "status",
				Value:   *r.Status,
				Message: "status must be one of NEW, DOING, REVIEW, DONE",
			}
		}
		u.Status = &status
	}
	if r.Due != nil {
		due, err := parseDue(*r.Due)
		if err != nil {
			return models.TaskUpdate{}, err
		}
		u.Due = &due
	}
	return u, nil
}

func parseDue(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC().Truncate(time.Millisecond), nil
	}
	return query.ParseDay("due", raw)
}

func (s *Server) bindTask(c *gin.Context, id string) (models.TaskUpdate, bool) {
	var req taskRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondBadRequest(c, err)
			return models.TaskUpdate{}, false
		}
	}
	u, err := req.update(id)
	if err != nil {
		s.respondError(c, err)
		return models.TaskUpdate{}, false
	}
	return u, true
}

// handleCreateTask inserts a new task, filling absent fields with defaults.
func (s *Server) handleCreateTask(c *gin.Context) {
	u, ok := s.bindTask(c, "")
	if !ok {
		return
	}
	id, err := s.svc.CreateTask(c.Request.Context(), u)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"id": id})
}

// handleUpsertTask writes the supplied fields to the task with the path id.
func (s *Server) handleUpsertTask(c *gin.Context) {
	u, ok := s.bindTask(c, c.Param("id"))
	if !ok {
		return
	}
	id, err := s.svc.CreateOrUpdateTask(c.Request.Context(), u)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}

// handleGetTask fetches a single task.
func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.svc.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task and reports how many records were removed.
func (s *Server) handleDeleteTask(c *gin.Context) {
	n, err := s.svc.DeleteTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": n})
}

// handleExpiringTasks lists NEW tasks due soon for an assignee.
func (s *Server) handleExpiringTasks(c *gin.Context) {
	assignee := c.Query("username")
	if assignee == "" {
		assignee = c.Query("assigned")
	}
	tasks, err := s.svc.ListExpiringTasks(c.Request.Context(), query.ExpiringParams{
		Assignee: assignee,
		StartDay: c.Query("startDay"),
		EndDay:   c.Query("endDay"),
		Days:     c.Query("days"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleSearchTasks lists tasks matching free-form filters.
func (s *Server) handleSearchTasks(c *gin.Context) {
	tasks, err := s.svc.ListTasks(c.Request.Context(), query.Params{
		Assigned:    c.Query("assigned"),
		Creator:     c.Query("creator"),
		TodoID:      c.Query("todoId"),
		Status:      c.Query("status"),
		Title:       c.Query("title"),
		Description: c.Query("description"),
		StartDay:    c.Query("startDay"),
		EndDay:      c.Query("endDay"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}
