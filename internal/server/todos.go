package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"todotracker/internal/models"
	"todotracker/internal/query"
)

type todoRequest struct {
	Username   *string        `json:"username"`
	Attributes map[string]any `json:"attributes"`
}

func (s *Server) bindTodo(c *gin.Context, id string) (models.TodoUpdate, bool) {
	var req todoRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondBadRequest(c, err)
			return models.TodoUpdate{}, false
		}
	}
	for k := range req.Attributes {
		if !models.ValidAttributeKey(k) {
			s.respondError(c, &query.MalformedInputError{
				Param:   "attributes",
				Value:   k,
				Message: "attribute keys must not start with '$' or contain '.'",
			})
			return models.TodoUpdate{}, false
		}
	}
	return models.TodoUpdate{ID: id, Username: req.Username, Attributes: req.Attributes}, true
}

// handleCreateTodo creates a todo owned by the caller unless a username is given.
func (s *Server) handleCreateTodo(c *gin.Context) {
	u, ok := s.bindTodo(c, "")
	if !ok {
		return
	}
	if u.Username == nil {
		u.Username = models.Ptr(s.svc.Identity())
	}
	id, err := s.svc.CreateOrUpdateTodo(c.Request.Context(), u)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"id": id})
}

// handleUpsertTodo writes the supplied fields to the todo with the path id.
func (s *Server) handleUpsertTodo(c *gin.Context) {
	u, ok := s.bindTodo(c, c.Param("id"))
	if !ok {
		return
	}
	id, err := s.svc.CreateOrUpdateTodo(c.Request.Context(), u)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}

// handleGetTodo returns the todo together with its tasks.
func (s *Server) handleGetTodo(c *gin.Context) {
	out, err := s.svc.GetTodoWithTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, out)
}

// handleDeleteTodo removes a todo. Its tasks are kept.
func (s *Server) handleDeleteTodo(c *gin.Context) {
	n, err := s.svc.DeleteTodo(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"deleted": n})
}
