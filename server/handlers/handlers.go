package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/internal/export"
	"github.com/themobileprof/ceepilot/internal/fiches"
	"github.com/themobileprof/ceepilot/internal/history"
	"github.com/themobileprof/ceepilot/internal/interfaces"
	"github.com/themobileprof/ceepilot/internal/journey"
	"github.com/themobileprof/ceepilot/internal/session"
	"github.com/themobileprof/ceepilot/pkg/models"
	"github.com/themobileprof/ceepilot/server/auth"
)

// Deps are the services the API is built on
type Deps struct {
	Fiches   interfaces.FicheStore
	History  interfaces.SimulationStore
	Logs     interfaces.CalculationLogger
	Sessions *session.Manager
	Journeys *journey.Logger
	Auth     *auth.Manager
}

// Handlers serves the estimator API
type Handlers struct {
	fiches   interfaces.FicheStore
	history  interfaces.SimulationStore
	logs     interfaces.CalculationLogger
	sessions *session.Manager
	journeys *journey.Logger
	auth     *auth.Manager
}

// New creates the API handlers
func New(d Deps) *Handlers {
	if d.Sessions == nil {
		d.Sessions = session.NewManager(0, nil)
	}
	if d.Auth == nil {
		d.Auth = auth.NewManager(nil, 0, false)
	}
	return &Handlers{
		fiches:   d.Fiches,
		history:  d.History,
		logs:     d.Logs,
		sessions: d.Sessions,
		journeys: d.Journeys,
		auth:     d.Auth,
	}
}

// RegisterRoutes registers the API and login routes
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/login", h.Login)
		authGroup.GET("/callback", h.Callback)
		authGroup.POST("/logout", h.Logout)
	}

	api := r.Group("/api", h.auth.RequireAuth())
	{
		api.GET("/me", h.Me)
		api.GET("/sectors", h.ListSectors)
		api.GET("/fiches", h.ListFiches)

		api.POST("/wizard/select", h.SelectFiche)
		api.GET("/wizard/parameters", h.GetParameters)
		api.POST("/wizard/calculate", h.Calculate)

		api.POST("/simulations", h.SaveSimulation)
		api.GET("/simulations", h.ListSimulations)
		api.GET("/simulations/export.xlsx", h.ExportSimulations)
		api.GET("/simulations/:id", h.GetSimulation)
		api.DELETE("/simulations/:id", h.DeleteSimulation)
	}
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me returns the caller's user id
func (h *Handlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": auth.UserID(c), "auth_enabled": h.auth.Enabled()})
}

type sectorEntry struct {
	Sector     string   `json:"sector"`
	Typologies []string `json:"typologies"`
}

// ListSectors returns the catalogue's sectors with their typologies
func (h *Handlers) ListSectors(c *gin.Context) {
	sectors, err := h.fiches.Sectors()
	if err != nil {
		internalError(c, err)
		return
	}

	entries := make([]sectorEntry, 0, len(sectors))
	for _, s := range sectors {
		typologies, err := h.fiches.Typologies(s)
		if err != nil {
			internalError(c, err)
			return
		}
		if typologies == nil {
			typologies = []string{}
		}
		entries = append(entries, sectorEntry{Sector: s, Typologies: typologies})
	}
	c.JSON(http.StatusOK, gin.H{"sectors": entries})
}

// ListFiches returns the fiches of a sector and typology
func (h *Handlers) ListFiches(c *gin.Context) {
	list, err := h.fiches.ListFiches(models.FicheFilter{
		Sector:   c.Query("sector"),
		Typology: c.Query("typology"),
	})
	if err != nil {
		internalError(c, err)
		return
	}
	if list == nil {
		list = []models.Fiche{}
	}
	c.JSON(http.StatusOK, gin.H{"fiches": list})
}

type selectRequest struct {
	Date       string `json:"date"`
	Department string `json:"department"`
	Sector     string `json:"sector"`
	Typology   string `json:"typology"`
	FicheCode  string `json:"fiche_code" binding:"required"`
}

type parameterField struct {
	engine.Parameter
	Label   string   `json:"label,omitempty"`
	Options []string `json:"options,omitempty"`
}

type wizardResponse struct {
	Selection  models.Selection `json:"selection"`
	Fiche      ficheSummary     `json:"fiche"`
	Parameters []parameterField `json:"parameters"`
}

type ficheSummary struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// SelectFiche records the wizard selection and loads the fiche's function
// into the caller's session.
func (h *Handlers) SelectFiche(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	fiche, err := h.fiches.GetFiche(req.FicheCode)
	if errors.Is(err, fiches.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	user := auth.UserID(c)
	sess := h.sessions.Get(user)
	sel := models.Selection{
		Date:       req.Date,
		Department: req.Department,
		Sector:     req.Sector,
		Typology:   req.Typology,
	}
	if err := sess.Select(sel, fiche); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	h.journeys.Start(user, sess.Selection())
	h.journeys.AddStep(user, "select", time.Since(start), fiche.Code)

	c.JSON(http.StatusOK, wizardView(sess))
}

// GetParameters returns the parameters of the selected fiche
func (h *Handlers) GetParameters(c *gin.Context) {
	sess := h.sessions.Get(auth.UserID(c))
	if sess.Fiche() == nil {
		c.JSON(http.StatusConflict, gin.H{"error": session.ErrNoFiche.Error()})
		return
	}
	c.JSON(http.StatusOK, wizardView(sess))
}

type calculateRequest struct {
	Parameters map[string]any `json:"parameters"`
}

// Calculate runs the selected fiche's function on the submitted form
func (h *Handlers) Calculate(c *gin.Context) {
	var req calculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := auth.UserID(c)
	sess := h.sessions.Get(user)
	fiche := sess.Fiche()
	if fiche == nil {
		c.JSON(http.StatusConflict, gin.H{"error": session.ErrNoFiche.Error()})
		return
	}

	var logID int64
	if h.logs != nil {
		id, err := h.logs.LogCalculation(user, fiche.Code)
		if err != nil {
			log.Printf("Warning: %v", err)
		}
		logID = id
	}

	start := time.Now()
	res := sess.Calculate(req.Parameters)
	elapsed := time.Since(start)

	if h.logs != nil && logID != 0 {
		status := "success"
		if !res.Success {
			status = "failed"
		}
		if err := h.logs.UpdateLogStatus(logID, status, res.Error, elapsed.Milliseconds()); err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	h.journeys.AddStep(user, "calculate", elapsed, string(res.Kind))
	h.journeys.SetOutcome(user, journey.Outcome{
		Success: res.Success,
		Cumacs:  res.Cumacs,
		Euros:   res.Euros,
		Error:   res.Error,
	})

	c.JSON(http.StatusOK, res)
}

// SaveSimulation stores the caller's last calculation in their history
func (h *Handlers) SaveSimulation(c *gin.Context) {
	user := auth.UserID(c)
	sim, err := h.sessions.Get(user).LastSimulation(user)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if err := h.history.Save(sim); err != nil {
		internalError(c, err)
		return
	}

	h.journeys.AddStep(user, "save", 0, sim.ID)
	if err := h.journeys.End(user); err != nil {
		log.Printf("Warning: %v", err)
	}

	c.JSON(http.StatusCreated, sim)
}

type historyResponse struct {
	*models.HistoryPage
	Totals *models.HistoryTotals `json:"totals"`
}

// ListSimulations returns one page of the caller's history
func (h *Handlers) ListSimulations(c *gin.Context) {
	user := auth.UserID(c)
	page, err := h.history.List(user, historyQuery(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	totals, err := h.history.Totals(user)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, historyResponse{HistoryPage: page, Totals: totals})
}

// GetSimulation returns one saved simulation
func (h *Handlers) GetSimulation(c *gin.Context) {
	sim, err := h.history.Get(auth.UserID(c), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sim)
}

// DeleteSimulation removes one saved simulation
func (h *Handlers) DeleteSimulation(c *gin.Context) {
	err := h.history.Delete(auth.UserID(c), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportSimulations streams the caller's filtered history as a workbook
func (h *Handlers) ExportSimulations(c *gin.Context) {
	sims, err := h.history.All(auth.UserID(c), historyQuery(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("simulations-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Status(http.StatusOK)
	if err := export.WriteXLSX(c.Writer, sims); err != nil {
		log.Printf("Warning: export failed: %v", err)
	}
}

func historyQuery(c *gin.Context) models.HistoryQuery {
	q := models.HistoryQuery{
		FicheCode:  c.Query("fiche"),
		Sector:     c.Query("sector"),
		Department: c.Query("department"),
		SortBy:     c.Query("sort"),
	}
	q.SuccessOnly, _ = strconv.ParseBool(c.Query("success"))
	q.Desc, _ = strconv.ParseBool(c.Query("desc"))
	q.Page, _ = strconv.Atoi(c.Query("page"))
	q.PageSize, _ = strconv.Atoi(c.Query("page_size"))
	return q
}

func wizardView(sess *session.Session) wizardResponse {
	fiche := sess.Fiche()
	params := sess.Parameters()

	fields := make([]parameterField, 0, len(params))
	for _, p := range params {
		fields = append(fields, parameterField{
			Parameter: p,
			Label:     fiche.Labels[p.Name],
			Options:   fiche.ParameterOptions[p.Name],
		})
	}

	return wizardResponse{
		Selection: sess.Selection(),
		Fiche: ficheSummary{
			Code:        fiche.Code,
			Name:        fiche.Name,
			Version:     fiche.Version,
			Description: fiche.Description,
		},
		Parameters: fields,
	}
}

func internalError(c *gin.Context, err error) {
	log.Printf("Error: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
