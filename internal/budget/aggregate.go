// Package budget computes spend-versus-target summaries from ledger entries.
// Everything here is pure; callers load the data.
package budget

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/budget-backend/internal/dto"
	"github.com/GregMSThompson/budget-backend/internal/models"
)

const dateLayout = "2006-01-02"

var (
	hundred       = decimal.NewFromInt(100)
	weeksPerMonth = decimal.NewFromInt(4)
)

// Window is an inclusive calendar-day range.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) contains(date string, loc *time.Location) bool {
	d, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return false
	}
	return !d.Before(w.Start) && !d.After(w.End)
}

// WeekWindow is Monday 00:00 through Sunday 23:59:59.999999999 of the week
// containing now, in now's location.
func WeekWindow(now time.Time) Window {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	start := day.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Nanosecond)}
}

// MonthWindow is the first through the last day of now's month.
func MonthWindow(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// Bounds returns the window as inclusive YYYY-MM-DD strings.
func (w Window) Bounds() (string, string) {
	return w.Start.Format(dateLayout), w.End.Format(dateLayout)
}

// WindowFor picks the week or month window for a view.
func WindowFor(view dto.BudgetView, now time.Time) Window {
	if view == dto.BudgetViewWeek {
		return WeekWindow(now)
	}
	return MonthWindow(now)
}

// NormalizeTarget converts a category target to the view's period: weekly
// targets are multiplied by four for a month, monthly ones divided by four
// for a week.
func NormalizeTarget(c models.BudgetCategory, view dto.BudgetView) decimal.Decimal {
	target := decimal.NewFromFloat(c.TargetAmount)
	switch {
	case view == dto.BudgetViewMonth && c.Frequency == models.FrequencyWeekly:
		return target.Mul(weeksPerMonth)
	case view == dto.BudgetViewWeek && c.Frequency == models.FrequencyMonthly:
		return target.Div(weeksPerMonth)
	}
	return target
}

// Percent is spent/target*100 capped at 100. A zero target reads 100 once
// anything is spent against it.
func Percent(spent, target decimal.Decimal) decimal.Decimal {
	if target.IsZero() {
		if spent.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	p := spent.Div(target).Mul(hundred)
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}

// Aggregate summarizes entries against categories for the week or month
// containing now. Subscription categories are listed at their normalized
// amount and kept out of the totals; entries matching no category count
// toward total spent and are reported as uncategorized.
func Aggregate(entries []models.LedgerEntry, categories []models.BudgetCategory, view dto.BudgetView, now time.Time) dto.BudgetSummary {
	if view != dto.BudgetViewWeek {
		view = dto.BudgetViewMonth
	}
	w := WindowFor(view, now)

	byKey := make(map[string]models.BudgetCategory, len(categories))
	for _, c := range categories {
		byKey[models.CategoryKey(c.Name)] = c
	}

	spent := make(map[string]decimal.Decimal, len(categories))
	uncategorized := decimal.Zero
	for _, e := range entries {
		if !w.contains(e.Date, now.Location()) {
			continue
		}
		amount := decimal.NewFromFloat(e.Amount)
		key := models.CategoryKey(e.Category)
		if _, ok := byKey[key]; !ok {
			uncategorized = uncategorized.Add(amount)
			continue
		}
		spent[key] = spent[key].Add(amount)
	}

	out := dto.BudgetSummary{
		View:          view,
		PeriodStart:   w.Start,
		PeriodEnd:     w.End,
		Categories:    []dto.CategorySummary{},
		Subscriptions: []dto.SubscriptionSummary{},
	}

	totalSpent := uncategorized
	totalBudget := decimal.Zero
	for _, c := range categories {
		target := NormalizeTarget(c, view)
		if c.IsSubscription {
			out.Subscriptions = append(out.Subscriptions, dto.SubscriptionSummary{
				Name:   c.Name,
				Amount: target.Round(2).InexactFloat64(),
			})
			continue
		}
		s := spent[models.CategoryKey(c.Name)]
		totalSpent = totalSpent.Add(s)
		totalBudget = totalBudget.Add(target)
		out.Categories = append(out.Categories, dto.CategorySummary{
			Name:    c.Name,
			Target:  target.Round(2).InexactFloat64(),
			Spent:   s.Round(2).InexactFloat64(),
			Percent: Percent(s, target).Round(2).InexactFloat64(),
		})
	}

	out.TotalSpent = totalSpent.Round(2).InexactFloat64()
	out.TotalBudget = totalBudget.Round(2).InexactFloat64()
	out.Remaining = totalBudget.Sub(totalSpent).Round(2).InexactFloat64()
	out.Uncategorized = uncategorized.Round(2).InexactFloat64()
	return out
}

// SpentIn sums the entries dated inside w.
func SpentIn(entries []models.LedgerEntry, w Window) float64 {
	total := decimal.Zero
	for _, e := range entries {
		if w.contains(e.Date, w.Start.Location()) {
			total = total.Add(decimal.NewFromFloat(e.Amount))
		}
	}
	return total.Round(2).InexactFloat64()
}

// SortedByDateDesc returns a copy of entries, newest first.
func SortedByDateDesc(entries []models.LedgerEntry) []models.LedgerEntry {
	out := make([]models.LedgerEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}
