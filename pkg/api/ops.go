package api

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/apiresponses"
	"github.com/dbops/toolkit/pkg/backup"
	"github.com/dbops/toolkit/pkg/mail"
	"github.com/dbops/toolkit/pkg/monitor"
)

// backupTimeout bounds one API-triggered database backup.
const backupTimeout = 30 * time.Minute

// MailService is the slice of the mail service the API needs.
type MailService interface {
	IsEnabled() bool
	Stats() mail.Stats
	EnqueueCustom(p mail.CustomPayload) (bool, string)
	EnqueueBackup(p mail.BackupPayload) (bool, string)
	EnqueueError(p mail.ErrorPayload) (bool, string)
}

// BackupRunner is the slice of the backup manager the API needs.
type BackupRunner interface {
	BackupDatabase(ctx context.Context, database string) (*backup.Summary, error)
}

// DatabaseMonitor is the slice of the MySQL monitor the API needs.
type DatabaseMonitor interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) (*monitor.Status, error)
	DatabaseSizes(ctx context.Context) ([]monitor.DatabaseSize, error)
}

// SystemReporter produces host metric snapshots.
type SystemReporter interface {
	Report(ctx context.Context) (*monitor.SystemReport, error)
}

// OpsController serves the operational endpoints: ping, health, mail queue
// statistics and the monitor reports.
type OpsController struct {
	serverName string
	mailSvc    MailService
	dbMonitor  DatabaseMonitor
	system     SystemReporter
	backups    BackupRunner
	databases  []string
	log        *zap.SugaredLogger
}

func NewOpsController(serverName string, mailSvc MailService, dbMonitor DatabaseMonitor, system SystemReporter, backups BackupRunner, databases []string, log *zap.SugaredLogger) *OpsController {
	return &OpsController{
		serverName: serverName,
		mailSvc:    mailSvc,
		dbMonitor:  dbMonitor,
		system:     system,
		backups:    backups,
		databases:  databases,
		log:        log,
	}
}

func (o *OpsController) BasePath() string { return "" }

func (o *OpsController) Handlers() []gin.HandlerFunc { return nil }

func (o *OpsController) Register(rg *gin.RouterGroup) error {
	rg.GET("ping", o.ping)
	rg.GET("health", o.health)
	rg.GET("mail/stats", o.mailStats)
	rg.POST("mail/test", o.mailTest)
	rg.POST("backup", o.backupRun)
	rg.GET("monitor/status", o.monitorStatus)
	rg.GET("monitor/sizes", o.monitorSizes)
	rg.GET("monitor/system", o.monitorSystem)
	return nil
}

func (o *OpsController) ping(c *gin.Context) {
	apiresponses.RespondOK(c, "pong", gin.H{
		"server": o.serverName,
		"status": "running",
	})
}

func (o *OpsController) health(c *gin.Context) {
	components := gin.H{
		"mail": o.mailSvc.IsEnabled(),
	}
	if o.dbMonitor != nil {
		if err := o.dbMonitor.Ping(c.Request.Context()); err != nil {
			components["mysql"] = false
			apiresponses.Respond(c, http.StatusServiceUnavailable, "mysql unreachable", components)
			return
		}
		components["mysql"] = true
	}
	apiresponses.RespondOK(c, "healthy", components)
}

func (o *OpsController) mailStats(c *gin.Context) {
	apiresponses.RespondOK(c, "mail queue statistics", o.mailSvc.Stats())
}

type mailTestRequest struct {
	To      []string `json:"to"`
	Message string   `json:"message"`
}

func (o *OpsController) mailTest(c *gin.Context) {
	var req mailTestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresponses.RespondBadRequestWithDetails(c, "invalid request body", err.Error())
			return
		}
	}
	if req.Message == "" {
		req.Message = "This is a test notification from the operations toolkit."
	}

	accepted, msg := o.mailSvc.EnqueueCustom(mail.CustomPayload{
		To:                   req.To,
		NotificationType:     "test",
		Title:                "Test notification",
		Message:              req.Message,
		Priority:             "low",
		UseDefaultRecipients: len(req.To) == 0,
	})
	if !accepted {
		apiresponses.RespondBadRequest(c, msg)
		return
	}
	apiresponses.RespondAccepted(c, msg, o.mailSvc.Stats())
}

type backupRequest struct {
	Database string `json:"database"`
}

// backupRun starts a database backup in the background. The outcome is
// reported by email: a backup report on completion, an error alert on
// failure, both to the configured default recipients.
func (o *OpsController) backupRun(c *gin.Context) {
	if o.backups == nil {
		apiresponses.RespondServiceUnavailable(c, "backup manager")
		return
	}
	var req backupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid request body", err.Error())
		return
	}
	if req.Database == "" {
		apiresponses.RespondBadRequest(c, "database is required")
		return
	}
	if !o.managedDatabase(req.Database) {
		apiresponses.RespondBadRequest(c, fmt.Sprintf("database %q is not managed by this server", req.Database))
		return
	}

	go o.runBackup(req.Database)
	apiresponses.RespondAccepted(c, fmt.Sprintf("backup of %s started", req.Database), gin.H{
		"database": req.Database,
	})
}

func (o *OpsController) managedDatabase(name string) bool {
	for _, db := range o.databases {
		if db == name {
			return true
		}
	}
	return false
}

func (o *OpsController) runBackup(database string) {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	summary, err := o.backups.BackupDatabase(ctx, database)
	if err != nil {
		o.log.Errorw("backup failed", "database", database, "error", err)
		o.mailSvc.EnqueueError(mail.ErrorPayload{
			ErrorType:            "Backup",
			ErrorMessage:         fmt.Sprintf("Backup of database %s failed", database),
			ErrorDetails:         err.Error(),
			Solution:             "Check the dbops server logs, then retry with dbopsctl backup.",
			UseDefaultRecipients: true,
		})
		return
	}
	o.mailSvc.EnqueueBackup(backupNotification(summary))
}

// backupNotification flattens a backup summary into the key/value rows the
// backup report template renders.
func backupNotification(s *backup.Summary) mail.BackupPayload {
	info := map[string]string{
		"Database": s.Database,
		"Tables":   fmt.Sprintf("%d/%d", s.TablesSuccess, s.TablesTotal),
		"Status":   s.Status,
		"Location": s.BackupDir,
	}
	if s.ArchiveFile != "" {
		info["Archive"] = filepath.Base(s.ArchiveFile)
	}
	if len(s.FailedTables) > 0 {
		info["Failed tables"] = strings.Join(s.FailedTables, ", ")
	}
	size := s.TotalSize
	if s.ArchiveSize != "" {
		size = s.ArchiveSize
	}
	return mail.BackupPayload{
		BackupType:           "database",
		BackupInfo:           info,
		FileSize:             size,
		Duration:             s.Duration,
		UseDefaultRecipients: true,
	}
}

func (o *OpsController) monitorStatus(c *gin.Context) {
	if o.dbMonitor == nil {
		apiresponses.RespondServiceUnavailable(c, "mysql monitor")
		return
	}
	status, err := o.dbMonitor.Status(c.Request.Context())
	if err != nil {
		apiresponses.RespondInternalError(c, "reading mysql status", err, o.log)
		return
	}
	apiresponses.RespondOK(c, "mysql status", status)
}

func (o *OpsController) monitorSizes(c *gin.Context) {
	if o.dbMonitor == nil {
		apiresponses.RespondServiceUnavailable(c, "mysql monitor")
		return
	}
	sizes, err := o.dbMonitor.DatabaseSizes(c.Request.Context())
	if err != nil {
		apiresponses.RespondInternalError(c, "reading database sizes", err, o.log)
		return
	}
	apiresponses.RespondOK(c, "database sizes", sizes)
}

func (o *OpsController) monitorSystem(c *gin.Context) {
	report, err := o.system.Report(c.Request.Context())
	if err != nil {
		apiresponses.RespondInternalError(c, "collecting system metrics", err, o.log)
		return
	}
	apiresponses.RespondOK(c, "system metrics", report)
}
