package origin

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const (
	listingTableSelector = `table[border="1"][cellspacing="0"][cellpadding="0"]`
	listingHeaderRows    = 2
	minCourseCells       = 9
	meetingCells         = 6
)

// listingPage is one parsed page of the course query.
type listingPage struct {
	courses []catalog.RawCourse
	// rows counts data rows seen, including rows rejected by validation.
	rows    int
	invalid []error
	hasMore bool
	ended   bool
}

func parseListing(body []byte, pageSize int) (listingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return listingPage{}, fmt.Errorf("parse listing: %w", err)
	}

	var page listingPage
	page.ended = bytes.Contains(body, []byte(endOfReport))
	page.hasMore = hasNextControl(doc, pageSize)

	table := doc.Find(listingTableSelector).First()
	if table.Length() == 0 {
		return page, nil
	}

	rows := table.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Closest("table").IsSelection(table)
	})
	rows.Each(func(i int, row *goquery.Selection) {
		if i < listingHeaderRows {
			return
		}
		cells := row.ChildrenFiltered("td")
		if cells.Length() < minCourseCells {
			return
		}
		page.rows++
		course := parseCourseRow(cells)
		if err := course.Validate(); err != nil {
			page.invalid = append(page.invalid, err)
			return
		}
		page.courses = append(page.courses, course)
	})
	return page, nil
}

func parseCourseRow(cells *goquery.Selection) catalog.RawCourse {
	course := catalog.RawCourse{
		Reference:      cellText(cells.Eq(0)),
		SubjectCode:    cellText(cells.Eq(1)),
		SubjectName:    cellText(cells.Eq(2)),
		Section:        cellText(cells.Eq(3)),
		Credits:        cellText(cells.Eq(4)),
		SeatsTotal:     cellText(cells.Eq(5)),
		SeatsAvailable: cellText(cells.Eq(6)),
	}

	cells.Eq(7).Find("table tr").Each(func(_ int, row *goquery.Selection) {
		tds := row.ChildrenFiltered("td")
		if tds.Length() != meetingCells {
			return
		}
		course.Meetings = append(course.Meetings, catalog.RawMeeting{
			Session:  cellText(tds.Eq(0)),
			Hours:    cellText(tds.Eq(1)),
			Days:     cellText(tds.Eq(2)),
			Building: cellText(tds.Eq(3)),
			Room:     cellText(tds.Eq(4)),
			Period:   cellText(tds.Eq(5)),
		})
	})

	// Only the first professor row is kept.
	profRow := cells.Eq(8).Find("table tr").First()
	if tds := profRow.ChildrenFiltered("td"); tds.Length() >= 2 {
		course.Professor = &catalog.RawProfessor{
			Session: cellText(tds.Eq(0)),
			Name:    cellText(tds.Eq(1)),
		}
	}
	return course
}

func hasNextControl(doc *goquery.Document, pageSize int) bool {
	label := fmt.Sprintf("%d Próximos", pageSize)
	return doc.Find("input[value]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.AttrOr("value", "")) == label
	}).Length() > 0
}

// cellText collapses runs of whitespace, including non-breaking spaces.
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
