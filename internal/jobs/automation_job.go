package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/services"
)

// AutomationJob drives the automation sweeps on a cron scheduler: rule
// processing every minute, SLA monitoring every 5 minutes, and the daily
// hygiene tasks (auto-close, follow-ups, report) overnight.
type AutomationJob struct {
	automation    *services.AutomationService
	slaMonitoring bool
	logger        *logrus.Logger
	cron          *cron.Cron
}

// NewAutomationJob creates a new automation job. SLA monitoring can be
// switched off where escalation is handled by an external system.
func NewAutomationJob(automation *services.AutomationService, slaMonitoring bool, logger *logrus.Logger) *AutomationJob {
	return &AutomationJob{
		automation:    automation,
		slaMonitoring: slaMonitoring,
		logger:        logger,
		cron:          cron.New(),
	}
}

type automationSchedule struct {
	spec string
	name string
	run  func(context.Context) error
}

// Start registers the schedules and starts the scheduler
func (j *AutomationJob) Start(ctx context.Context) error {
	schedules := []automationSchedule{
		{"* * * * *", "process_rules", j.processRules},
		{"0 2 * * *", "auto_close", j.autoClose},
		{"0 9 * * *", "follow_ups", j.followUps},
		{"0 6 * * *", "daily_report", j.dailyReport},
	}
	if j.slaMonitoring {
		schedules = append(schedules, automationSchedule{"*/5 * * * *", "monitor_sla", j.monitorSLA})
	} else {
		j.logger.Info("SLA monitoring disabled by configuration")
	}

	for _, s := range schedules {
		name, run := s.name, s.run
		_, err := j.cron.AddFunc(s.spec, func() {
			if err := run(ctx); err != nil {
				j.logger.WithError(err).WithField("task", name).Error("Automation task failed")
			}
		})
		if err != nil {
			return err
		}
	}

	j.cron.Start()
	j.logger.Info("Automation job started")
	return nil
}

// Stop stops the scheduler and waits for running tasks
func (j *AutomationJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Automation job stopped")
}

func (j *AutomationJob) processRules(ctx context.Context) error {
	summary, err := j.automation.ProcessScheduledRules(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if summary.RulesRun > 0 {
		j.logger.WithFields(logrus.Fields{
			"rules_run":          summary.RulesRun,
			"executions_started": summary.ExecutionsStarted,
			"executions_failed":  summary.ExecutionsFailed,
		}).Info("Processed scheduled rules")
	}
	return nil
}

func (j *AutomationJob) monitorSLA(ctx context.Context) error {
	_, err := j.automation.MonitorSLABreaches(ctx, time.Now().UTC())
	return err
}

func (j *AutomationJob) autoClose(ctx context.Context) error {
	_, err := j.automation.AutoCloseStaleTickets(ctx, time.Now().UTC())
	return err
}

func (j *AutomationJob) followUps(ctx context.Context) error {
	sent, err := j.automation.SendFollowUpReminders(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if sent > 0 {
		j.logger.Infof("Sent %d follow-up reminders", sent)
	}
	return nil
}

func (j *AutomationJob) dailyReport(ctx context.Context) error {
	data, err := j.automation.GenerateAutomatedReport(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	j.logger.WithField("bytes", len(data)).Info("Generated daily ticket report")
	return nil
}
