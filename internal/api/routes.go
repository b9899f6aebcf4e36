package api

import (
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/sfpctl/internal/diag"
	"github.com/danmuck/sfpctl/internal/registry"
	"github.com/danmuck/sfpctl/internal/scenario"
	"github.com/danmuck/sfpctl/internal/server"
	"github.com/danmuck/sfpctl/internal/sfp"
	"github.com/danmuck/sfpctl/internal/store"
)

const maxDumpBytes = 2 * sfp.PageSize

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.started).String(),
			"component": "sfpctl-api",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/devices", s.listDevices)
	r.POST("/devices/:ip/clone", s.cloneMemory)
	r.POST("/devices/:ip/monitor", s.startMonitor)
	r.DELETE("/devices/:ip/monitor", s.stopMonitor)
	r.GET("/devices/:ip/diagnostics", s.diagnostics)

	r.GET("/sfps", s.listSFPs)
	r.POST("/sfps", s.importSFP)
	r.GET("/sfps/:id/memory", s.sfpMemory)
	r.GET("/sfps/:id/scenarios", s.listScenarios)
	r.POST("/sfps/:id/scenarios", s.createScenario)

	r.GET("/events", s.streamEvents)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, server.ErrUnknownDestination),
		errors.Is(err, diag.ErrNoSession),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, diag.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, scenario.ErrInvalidScenario),
		errors.Is(err, registry.ErrInvalidIP),
		errors.Is(err, store.ErrInvalidID),
		errors.Is(err, sfp.ErrPageSize):
		return http.StatusBadRequest
	case errors.Is(err, sfp.ErrChecksumMismatch):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) listDevices(c *gin.Context) {
	var sessions []diag.SessionInfo
	if s.deps.Diagnostics != nil {
		sessions = s.deps.Diagnostics.Sessions()
	}
	c.JSON(http.StatusOK, gin.H{
		"devices":  s.deps.Devices.Snapshot(),
		"sessions": sessions,
	})
}

func (s *Server) cloneMemory(c *gin.Context) {
	if err := s.deps.Commands.CloneMemory(c.Param("ip")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (s *Server) startMonitor(c *gin.Context) {
	info, err := s.deps.Diagnostics.Start(s.base, c.Param("ip"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": info})
}

func (s *Server) stopMonitor(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stopped": s.deps.Diagnostics.Stop(c.Param("ip"))})
}

func (s *Server) diagnostics(c *gin.Context) {
	snap, err := s.deps.Diagnostics.Snapshot(c.Param("ip"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) listSFPs(c *gin.Context) {
	entries, err := s.deps.Catalog.List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sfps": entries})
}

// importSFP accepts a raw dump: 256 bytes of A0, optionally followed by 256 of A2.
func (s *Server) importSFP(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDumpBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a0, a2, err := sfp.SplitDump(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	entry, created, err := s.deps.Catalog.ImportPages(c.Request.Context(), a0, a2, s.cfg.ChecksumPolicy)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"sfp": entry})
}

func (s *Server) sfpMemory(c *gin.Context) {
	id := c.Param("id")
	a0, err := s.deps.Catalog.ReadPage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	module, err := sfp.FromPages(a0, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	check, err := module.VerifyBaseChecksum(s.cfg.ChecksumPolicy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            id,
		"identifier":    module.Identifier(),
		"vendor_name":   module.VendorName(),
		"part_number":   module.VendorPartNumber(),
		"revision":      module.VendorRevision(),
		"serial_number": module.VendorSerial(),
		"wavelength_nm": module.WavelengthNM(),
		"calibration":   module.CalibrationType().String(),
		"ddm":           module.DiagnosticsImplemented(),
		"checksum": gin.H{
			"computed": check.Computed,
			"stored":   check.Stored,
			"checked":  check.Checked,
			"mismatch": check.Mismatch,
		},
		"a0": hex.EncodeToString(a0),
	})
}

func (s *Server) listScenarios(c *gin.Context) {
	rows, err := s.deps.Catalog.Scenarios(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": rows})
}

type scenarioRequest struct {
	Name      string    `json:"name"`
	Parameter string    `json:"parameter"`
	Values    []float64 `json:"values"`
	// ValuesText is the comma separated form, used when Values is empty.
	ValuesText string `json:"values_text"`
}

func (s *Server) createScenario(c *gin.Context) {
	var req scenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	values := req.Values
	if len(values) == 0 && req.ValuesText != "" {
		parsed, err := scenario.ParseValues(req.ValuesText)
		if err != nil {
			respondError(c, err)
			return
		}
		values = parsed
	}
	row, err := scenario.Build(c.Param("id"), req.Name, req.Parameter, values)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := scenario.Save(c.Request.Context(), s.deps.Catalog, []scenario.Row{row}); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"scenario": row})
}
