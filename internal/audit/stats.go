// File: internal/audit/stats.go
package audit

import "github.com/xkilldash9x/mend-cli/api/schemas"

// Statistics summarizes an audit trail for the stats command.
type Statistics struct {
	TotalIncidents      int                        `json:"total_incidents"`
	SuccessfulHealings  int                        `json:"successful_healings"`
	FailedHealings      int                        `json:"failed_healings"`
	SuccessRate         float64                    `json:"success_rate"`
	ManualInterventions int                        `json:"manual_interventions"`
	Rollbacks           int                        `json:"rollbacks"`
	ByErrorKind         map[schemas.ErrorKind]int  `json:"by_error_kind"`
	ByTarget            map[schemas.TargetKind]int `json:"by_target"`
}

// ComputeStatistics folds a raw event stream into totals. Incident counts
// come from detection events; outcomes come from completion events.
func ComputeStatistics(events []schemas.HealingEvent) Statistics {
	stats := Statistics{
		ByErrorKind: make(map[schemas.ErrorKind]int),
		ByTarget:    make(map[schemas.TargetKind]int),
	}

	seen := make(map[string]struct{})
	completed := 0
	for _, event := range events {
		switch event.Type {
		case schemas.EventErrorDetected:
			if _, ok := seen[event.IncidentID]; !ok {
				seen[event.IncidentID] = struct{}{}
				stats.TotalIncidents++
			}
			if event.ErrorKind != "" {
				stats.ByErrorKind[event.ErrorKind]++
			}
			if event.Target != "" {
				stats.ByTarget[event.Target]++
			}
		case schemas.EventHealingComplete:
			completed++
			if event.Success != nil && *event.Success {
				stats.SuccessfulHealings++
			} else {
				stats.FailedHealings++
			}
		case schemas.EventManualInterventionRequired:
			stats.ManualInterventions++
		case schemas.EventRollbackPerformed:
			stats.Rollbacks++
		}
	}

	if completed > 0 {
		stats.SuccessRate = float64(stats.SuccessfulHealings) / float64(completed)
	}
	return stats
}
