// Package server exposes the expense pipeline over HTTP for n8n-style
// integrations. One server owns one long-lived browsing session; portal
// work is serialized because the driver drives a single page.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tourcharge/internal/batch"
	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/form"
	"tourcharge/internal/logging"
	"tourcharge/internal/packages"
	"tourcharge/internal/resolver"
	"tourcharge/internal/session"
	"tourcharge/internal/store"
	"tourcharge/internal/types"
	"tourcharge/internal/verify"
)

// Server is the HTTP adapter over the pipeline. Unlike a batch run, the
// session is kept alive between requests and only released on shutdown.
type Server struct {
	drv driver.Driver
	st  *store.DB // nil disables run history
	log *zap.Logger

	cfg atomic.Pointer[config.Config]

	// mu serializes portal access across requests and guards machine,
	// which is rebuilt when the config changes.
	mu       sync.Mutex
	session  *session.Manager
	resolver *resolver.Resolver
	machine  *form.Machine
	verifier *verify.Extractor
	catalog  *packages.Extractor

	now func() time.Time
}

// New builds a server over the given driver. st may be nil when run
// history is not configured.
func New(cfg config.Config, drv driver.Driver, st *store.DB, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		drv:      drv,
		st:       st,
		log:      log,
		session:  session.NewManager(cfg, drv),
		resolver: resolver.New(cfg, drv),
		machine:  form.New(cfg, drv),
		verifier: verify.New(drv),
		catalog:  packages.New(cfg, drv),
		now:      time.Now,
	}
	cp := cfg
	s.cfg.Store(&cp)
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/health", s.handleHealth)
	r.POST("/login", s.handleLogin)
	r.GET("/packages", s.handleListPackages)
	r.GET("/packages/:id", s.handlePackageDetail)
	r.GET("/program-code/:tour_code", s.handleProgramCode)
	r.POST("/expenses", s.handleCreateExpense)
	r.POST("/batch-expenses", s.handleBatchExpenses)
	r.GET("/runs", s.handleRuns)
	r.GET("/runs/:id", s.handleRunDetail)
	r.GET("/config", s.handleGetConfig)
	r.PUT("/config", s.handleUpdateConfig)
	return r
}

// Run serves until ctx is canceled, then drains connections and releases
// the portal session.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.cfg.Load()
	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     s.Router(),
		ReadTimeout: cfg.Server.GetReadTimeout(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Server("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		if err := s.session.Release(); err != nil {
			logging.ServerError("release session: %v", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// requestLogger emits one structured line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "tourcharge-api",
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ensureLogin(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "login successful"})
}

func (s *Server) handleListPackages(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid limit"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ensureLogin(c) {
		return
	}

	pkgs, err := s.catalog.List(c.Request.Context(), packages.ListOptions{
		Keyword: c.Query("keyword"),
	})
	if err != nil {
		logging.ServerError("list packages: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	if limit > 0 && len(pkgs) > limit {
		pkgs = pkgs[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"count":    len(pkgs),
		"packages": pkgs,
	})
}

func (s *Server) handlePackageDetail(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ensureLogin(c) {
		return
	}

	d, err := s.catalog.Detail(c.Request.Context(), id)
	if errors.Is(err, packages.ErrNoSuchPackage) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no such package: " + id})
		return
	}
	if err != nil {
		logging.ServerError("package %s: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "package": d})
}

func (s *Server) handleProgramCode(c *gin.Context) {
	tourCode := c.Param("tour_code")

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ensureLogin(c) {
		return
	}

	code, err := s.resolver.Resolve(c.Request.Context(), tourCode)
	if errors.Is(err, resolver.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success":   false,
			"tour_code": tourCode,
			"error":     batch.FailureReason(err),
		})
		return
	}
	if err != nil {
		logging.ServerError("resolve %s: %v", tourCode, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"tour_code":    tourCode,
		"program_code": code,
	})
}

// expenseRequest is one expense over the wire. ProgramCode is optional;
// when absent it is resolved from the tour code.
type expenseRequest struct {
	TourCode          string  `json:"tour_code"`
	ProgramCode       string  `json:"program_code"`
	Pax               int     `json:"pax"`
	Amount            float64 `json:"amount"`
	Description       string  `json:"description"`
	AddCompanyExpense *bool   `json:"add_company_expense"`
}

func (r expenseRequest) entry() types.Entry {
	return types.Entry{
		TourCode:    r.TourCode,
		Pax:         r.Pax,
		Amount:      r.Amount,
		Description: r.Description,
	}
}

func (s *Server) handleCreateExpense(c *gin.Context) {
	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request: " + err.Error()})
		return
	}
	if err := req.entry().Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ensureLogin(c) {
		return
	}

	res := s.process(c.Request.Context(), req)
	c.JSON(http.StatusOK, resultJSON(res))
}

func (s *Server) handleBatchExpenses(c *gin.Context) {
	var req struct {
		Expenses []expenseRequest `json:"expenses"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request: " + err.Error()})
		return
	}
	if len(req.Expenses) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no expenses provided"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ensureLogin(c) {
		return
	}

	run := &types.BatchResult{RunID: uuid.New().String(), Started: s.now()}
	results := make([]gin.H, 0, len(req.Expenses))
	for _, item := range req.Expenses {
		r := s.process(c.Request.Context(), item)
		run.Append(r)
		results = append(results, resultJSON(r))
	}
	run.Finished = s.now()
	logging.Server("batch %s: %s", run.RunID, run.Summary())

	if s.st != nil {
		if err := s.st.Emit(run); err != nil {
			logging.ServerError("persist run %s: %v", run.RunID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"run_id":     run.RunID,
		"total":      run.Total(),
		"successful": run.Succeeded(),
		"failed":     run.Failed(),
		"results":    results,
	})
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "run history not configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid limit"})
		return
	}

	runs, err := s.st.Runs(c.Request.Context(), limit)
	if err != nil {
		logging.ServerError("list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(runs), "runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if s.st == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "run history not configured"})
		return
	}
	id := c.Param("id")

	run, err := s.st.Run(c.Request.Context(), id)
	if err != nil {
		logging.ServerError("run %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no such run: " + id})
		return
	}
	results, err := s.st.RunResults(c.Request.Context(), id)
	if err != nil {
		logging.ServerError("run %s results: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "run": run, "results": results})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg := s.cfg.Load()
	c.JSON(http.StatusOK, gin.H{
		"base_url":                cfg.Portal.BaseURL,
		"charges_url":             cfg.Portal.ChargesURL(),
		"packages_url":            cfg.Portal.PackagesURL(),
		"description":             cfg.Form.Description,
		"charge_type":             cfg.Form.ChargeType,
		"company_expense_enabled": cfg.Company.Enabled,
		"company_name":            cfg.Company.Name,
		"company_value":           cfg.Company.Value,
		"payment_method":          cfg.Company.PaymentMethod,
		"payment_type":            cfg.Company.PaymentType,
	})
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var u config.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request: " + err.Error()})
		return
	}

	s.mu.Lock()
	next := s.cfg.Load().Apply(u)
	s.swap(next)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "configuration updated"})
}

// ApplyConfig folds the runtime-updatable fields of next into the running
// configuration. Portal, browser and server settings stay fixed for the
// life of the process; changing those needs a restart.
func (s *Server) ApplyConfig(next config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.cfg.Load()
	cur.Form.Description = next.Form.Description
	cur.Form.ChargeType = next.Form.ChargeType
	cur.Company = next.Company
	s.swap(cur)
}

// swap installs a new configuration. Callers hold s.mu. The machine is
// the only component reading the updatable fields; session, resolver and
// catalogue keep their state.
func (s *Server) swap(next config.Config) {
	s.cfg.Store(&next)
	s.machine = form.New(next, s.drv)
	logging.Server("config updated")
}

// ensureLogin authenticates the shared session, writing the error response
// on failure. Callers hold the portal lock.
func (s *Server) ensureLogin(c *gin.Context) bool {
	err := s.session.Login(c.Request.Context())
	if err == nil {
		return true
	}
	logging.ServerError("login: %v", err)
	status := http.StatusBadGateway
	if errors.Is(err, session.ErrAuthentication) {
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
	return false
}

// process runs one expense through the pipeline, resolving the program
// code when the request does not carry one. Callers hold the portal lock
// and have authenticated the session. Failures come back as a failed
// result, never an error, so batch items stay isolated.
func (s *Server) process(ctx context.Context, req expenseRequest) types.Result {
	res := types.Result{
		Entry:       req.entry(),
		ProgramCode: req.ProgramCode,
		Status:      types.StatusFailed,
	}
	defer func() { res.Timestamp = s.now() }()

	if err := res.Entry.Validate(); err != nil {
		res.Reason = batch.FailureReason(err)
		return res
	}

	if res.ProgramCode == "" {
		code, err := s.resolver.Resolve(ctx, res.TourCode)
		if err != nil {
			logging.ServerError("resolve %s: %v", res.TourCode, err)
			res.Reason = batch.FailureReason(err)
			return res
		}
		res.ProgramCode = code
	}

	machine := s.machine
	if req.AddCompanyExpense != nil {
		cfg := *s.cfg.Load()
		if *req.AddCompanyExpense != cfg.Company.Enabled {
			override := cfg
			override.Company.Enabled = *req.AddCompanyExpense
			machine = form.New(override, s.drv)
		}
	}

	if err := machine.Run(ctx, res.Entry, res.ProgramCode); err != nil {
		logging.ServerError("expense %s failed in state %s: %v", res.TourCode, machine.State(), err)
		res.Reason = batch.FailureReason(err)
		return res
	}

	res.Status = types.StatusSuccess
	if id, ok := s.verifier.Extract(ctx); ok {
		res.ConfirmationID = id
	} else {
		logging.Server("expense %s submitted (no expense number returned)", res.TourCode)
	}
	return res
}

// resultJSON renders a result in the flat wire shape integrations consume.
func resultJSON(r types.Result) gin.H {
	h := gin.H{
		"success":      r.Succeeded(),
		"tour_code":    r.TourCode,
		"program_code": r.ProgramCode,
		"pax":          r.Pax,
		"amount":       r.Amount,
		"status":       r.Status,
	}
	if r.ConfirmationID != "" {
		h["expense_no"] = r.ConfirmationID
	}
	if r.Reason != "" {
		h["error"] = r.Reason
	}
	return h
}
