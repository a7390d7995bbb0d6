package http

import (
	"context"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/adapters/driving/http/docs"
	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

const readyCheckTimeout = 3 * time.Second

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// ReadyResponse reports backend reachability and AI capabilities
// @Description Readiness report
type ReadyResponse struct {
	Status    string            `json:"status" example:"ready"`
	Checks    map[string]string `json:"checks"`
	CanIngest bool              `json:"can_ingest"`
	CanAnswer bool              `json:"can_answer"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the database, Redis and task queue, and probes the AI providers
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse  "A required backend is unreachable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: map[string]string{}}
	required := map[string]Pinger{"database": s.db, "queue": s.taskQueue}
	if s.redis != nil {
		required["redis"] = s.redis
	}
	for name, p := range required {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
		} else {
			resp.Checks[name] = "ok"
		}
	}

	if s.runtime != nil {
		// AI outages degrade answers but do not make the API unready
		_ = s.runtime.Probe(ctx)
		cfg := s.runtime.Config()
		resp.Checks["embedding"] = availability(cfg.EmbeddingAvailable())
		resp.Checks["llm"] = availability(cfg.LLMAvailable())
		resp.CanIngest = cfg.CanIngest()
		resp.CanAnswer = cfg.CanAnswer()
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func availability(ok bool) string {
	if ok {
		return "ok"
	}
	return "unavailable"
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// handleSwaggerDoc serves the registered OpenAPI document
func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	docs.SwaggerInfo.Version = s.version
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
}

// Auth endpoints

// handleRegister godoc
// @Summary      Register
// @Description  Create an account. The first account becomes an admin.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      domain.RegisterRequest  true  "Account details"
// @Success      201      {object}  domain.UserSummary
// @Failure      400      {object}  ErrorResponse  "Invalid input"
// @Failure      409      {object}  ErrorResponse  "Email already registered"
// @Router       /auth/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleLogin godoc
// @Summary      User login
// @Description  Authenticate with email and password to receive a JWT token
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      domain.LoginRequest  true  "Login credentials"
// @Success      200      {object}  domain.LoginResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Invalid credentials or account disabled"
// @Failure      500      {object}  ErrorResponse  "Internal server error"
// @Router       /auth/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.authService.Authenticate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh godoc
// @Summary      Refresh token
// @Description  Exchange a refresh token for a new JWT token
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      domain.RefreshRequest  true  "Refresh token"
// @Success      200      {object}  domain.LoginResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Invalid refresh token"
// @Router       /auth/refresh [post]
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.authService.RefreshToken(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout godoc
// @Summary      Logout user
// @Description  Invalidate the current session token
// @Tags         Authentication
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  StatusResponse
// @Router       /auth/logout [post]
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := extractBearerToken(r); token != "" {
		_ = s.authService.Logout(r.Context(), token)
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleLogoutAll godoc
// @Summary      Logout everywhere
// @Description  Invalidate every session of the current user
// @Tags         Authentication
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  StatusResponse
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Router       /auth/logout-all [post]
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := s.authService.LogoutAll(r.Context(), ownerID(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleGetMe godoc
// @Summary      Get current user
// @Description  Get the currently authenticated user's profile
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.UserSummary
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      404  {object}  ErrorResponse  "User not found"
// @Router       /me [get]
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := s.authService.GetUser(r.Context(), authCtx.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleChangePassword godoc
// @Summary      Change password
// @Description  Change the current user's password. Every session is ended.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        request  body      domain.ChangePasswordRequest  true  "Current and new password"
// @Security     BearerAuth
// @Success      200  {object}  StatusResponse
// @Failure      400  {object}  ErrorResponse  "Invalid request"
// @Failure      401  {object}  ErrorResponse  "Current password is wrong"
// @Router       /me/password [put]
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.authService.ChangePassword(r.Context(), ownerID(r), req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// Admin endpoints

// handleQueueStats godoc
// @Summary      Task queue statistics
// @Description  Counts of pending, processing, completed and failed tasks
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driven.QueueStats
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Admin access required"
// @Router       /admin/queue [get]
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.taskQueue.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListSchedules godoc
// @Summary      List maintenance schedules
// @Description  Recurring maintenance tasks with their interval, last run and next run
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.ScheduledTask
// @Failure      403  {object}  ErrorResponse  "Admin access required"
// @Failure      503  {object}  ErrorResponse  "Scheduler not configured"
// @Router       /admin/schedules [get]
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	schedules, err := s.maintenance.ListScheduledTasks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if schedules == nil {
		schedules = []*domain.ScheduledTask{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

// handleRunSchedule godoc
// @Summary      Run a maintenance schedule now
// @Description  Enqueues the schedule's task immediately
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Schedule ID"
// @Success      202  {object}  domain.Task
// @Failure      403  {object}  ErrorResponse  "Admin access required"
// @Failure      404  {object}  ErrorResponse  "Schedule not found"
// @Failure      503  {object}  ErrorResponse  "Scheduler not configured"
// @Router       /admin/schedules/{id}/run [post]
func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	if s.maintenance == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	task, err := s.maintenance.TriggerNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// ownerID returns the caller's owner scope. Routes behind Authenticate always have one.
func ownerID(r *http.Request) string {
	if authCtx := GetAuthContext(r.Context()); authCtx != nil {
		return authCtx.UserID
	}
	return ""
}
