// internal/lateness/lateness.go
package lateness

import (
	"time"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

const day = 24 * time.Hour

// DaysLate counts started days past the deadline: one second late is one day,
// 24h1m late is two. Anything on or before the deadline is zero.
func DaysLate(deadline, at time.Time) int {
	delta := at.Sub(deadline)
	if delta <= 0 {
		return 0
	}
	days := int(delta / day)
	if delta%day != 0 {
		days++
	}
	return days
}

// ForStatus is how late a student is on a homework. A submitted row is
// measured at submission time; an unsubmitted one keeps accruing until now.
func ForStatus(deadline *time.Time, status *models.HomeworkStatus, now time.Time) int {
	if deadline == nil {
		return 0
	}
	if status.SubmittedAt != nil {
		return DaysLate(*deadline, *status.SubmittedAt)
	}
	if status.Status == models.ProgressCompleted {
		return 0
	}
	return DaysLate(*deadline, now)
}

// Annotate fills DaysLate on every view.
func Annotate(deadline *time.Time, views []models.StatusView, now time.Time) {
	for i := range views {
		views[i].DaysLate = ForStatus(deadline, &views[i].HomeworkStatus, now)
	}
}
