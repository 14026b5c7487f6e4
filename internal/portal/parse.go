package portal

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"domain-renewer/internal/models"
)

// renewLabel matches the renewal controls the portal renders in a domain
// row, in the languages the dashboard has been observed to use.
var renewLabel = regexp.MustCompile(`(?i)\b(renew|prolong)\b|续期`)

// parseDomainRows extracts DomainRecords from the domain-management table.
// The domain name sits in the second cell; a renew control anywhere in the
// row marks the domain eligible. Rows without a recognizable name are
// dropped (header repeats, spacer rows).
func parseDomainRows(doc *goquery.Document) []models.DomainRecord {
	var records []models.DomainRecord

	doc.Find("table tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}

		name := strings.TrimSpace(cells.Eq(1).Text())
		if name == "" {
			name = strings.TrimSpace(cells.Eq(0).Text())
		}
		if name == "" || strings.ContainsAny(name, " \t\n") {
			return
		}

		record := models.DomainRecord{
			Name:          name,
			Row:           i,
			DaysRemaining: -1,
		}

		row.Find("button, a.btn, input[type=submit]").EachWithBreak(func(_ int, ctl *goquery.Selection) bool {
			label := ctl.Text()
			if label == "" {
				label, _ = ctl.Attr("value")
			}
			if renewLabel.MatchString(label) {
				record.Eligible = true
				return false
			}
			return true
		})

		if expiry, ok := findExpiry(cells); ok {
			record.ExpiryDate = expiry
			record.DaysRemaining = int(time.Until(expiry).Hours() / 24)
		}

		records = append(records, record)
	})

	return records
}

// findExpiry scans the remaining cells for something that parses as a date.
// The dashboard renders the expiry column in varying formats.
func findExpiry(cells *goquery.Selection) (time.Time, bool) {
	formats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"02/01/2006",
		"Jan 2, 2006",
	}

	var expiry time.Time
	found := false

	cells.Each(func(i int, cell *goquery.Selection) {
		if found || i < 2 {
			return
		}
		text := strings.TrimSpace(cell.Text())
		for _, format := range formats {
			if t, err := time.Parse(format, text); err == nil {
				expiry = t
				found = true
				return
			}
		}
	})

	return expiry, found
}
