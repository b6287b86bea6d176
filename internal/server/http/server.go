// Package httpserver exposes the services as a JSON API over gin.
package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/borga/internal/errs"
	"github.com/and161185/borga/internal/service"
)

// Pinger reports backend health. Every repository.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	games   service.GameService
	groups  service.GroupService
	health  Pinger
	metrics *Metrics
	log     *zap.Logger
}

// New constructs a server with injected services.
func New(auth service.AuthService, games service.GameService, groups service.GroupService, health Pinger, metrics *Metrics, log *zap.Logger) *Server {
	return &Server{auth: auth, games: games, groups: groups, health: health, metrics: metrics, log: log}
}

// Router builds the gin engine with middleware and every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.metrics.Middleware(), Logging(s.log), Recover(s.log))

	r.GET("/health", s.healthCheck)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/games/mostPopular", s.mostPopular)
		api.GET("/games", s.searchGames)
		api.GET("/games/:gameId", s.gameDetails)

		api.POST("/users", s.createUser)
		api.POST("/users/login", s.login)
	}

	groups := api.Group("/groups", s.requireUser)
	{
		groups.GET("", s.listGroups)
		groups.POST("", s.createGroup)
		groups.GET("/:groupId", s.groupDetails)
		groups.PUT("/:groupId", s.editGroup)
		groups.DELETE("/:groupId", s.deleteGroup)
		groups.POST("/:groupId/games", s.addGame)
		groups.DELETE("/:groupId/games/:gameId", s.removeGame)
	}
	return r
}

// bindJSON decodes an optional JSON body. Absent fields are reported later as MISSING_PARAM.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.KindInvalidParam, err, "malformed JSON body")
	}
	return nil
}

func (s *Server) healthCheck(c *gin.Context) {
	if err := s.health.Ping(c.Request.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// --- Games ---

func (s *Server) mostPopular(c *gin.Context) {
	games, err := s.games.MostPopular(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

func (s *Server) searchGames(c *gin.Context) {
	games, err := s.games.Search(c.Request.Context(), c.Query("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (s *Server) gameDetails(c *gin.Context) {
	game, err := s.games.GameDetails(c.Request.Context(), c.Param("gameId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, game)
}

// --- Users ---

type createUserRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) createUser(c *gin.Context) {
	var req createUserRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	token, err := s.auth.CreateUser(c.Request.Context(), req.Name, req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	u, err := s.auth.CheckAndGetUser(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// --- Groups ---

type groupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addGameRequest struct {
	GameID string `json:"gameId"`
}

func (s *Server) listGroups(c *gin.Context) {
	groups, err := s.groups.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) createGroup(c *gin.Context) {
	var req groupRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	id, err := s.groups.Create(c.Request.Context(), currentUser(c), req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"groupId": id})
}

func (s *Server) groupDetails(c *gin.Context) {
	d, err := s.groups.Details(c.Request.Context(), currentUser(c), c.Param("groupId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) editGroup(c *gin.Context) {
	var req groupRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	groupID := c.Param("groupId")
	if err := s.groups.Edit(c.Request.Context(), currentUser(c), groupID, req.Name, req.Description); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupId": groupID})
}

func (s *Server) deleteGroup(c *gin.Context) {
	groupID := c.Param("groupId")
	if err := s.groups.Delete(c.Request.Context(), currentUser(c), groupID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groupId": groupID})
}

func (s *Server) addGame(c *gin.Context) {
	var req addGameRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := s.groups.AddGame(c.Request.Context(), currentUser(c), c.Param("groupId"), req.GameID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"gameId": req.GameID})
}

func (s *Server) removeGame(c *gin.Context) {
	gameID := c.Param("gameId")
	if err := s.groups.RemoveGame(c.Request.Context(), currentUser(c), c.Param("groupId"), gameID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gameId": gameID})
}
