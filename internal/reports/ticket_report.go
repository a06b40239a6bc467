package reports

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"helpdesk-service/internal/models"
)

// TicketSummary is the input for a generated report
type TicketSummary struct {
	GeneratedAt   time.Time
	CountByStatus map[models.TicketStatus]int64
	OverdueCount  int
	Tickets       []models.Ticket
}

var statusOrder = []models.TicketStatus{
	models.TicketStatusOpen,
	models.TicketStatusInProgress,
	models.TicketStatusOnHold,
	models.TicketStatusEscalated,
	models.TicketStatusResolved,
	models.TicketStatusClosed,
}

// WriteTicketSummary renders the summary as an xlsx workbook and returns
// the file bytes. Two sheets: a status breakdown and the ticket detail.
func WriteTicketSummary(summary *TicketSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	f.SetSheetName("Sheet1", summarySheet)

	f.SetCellValue(summarySheet, "A1", "Ticket Summary Report")
	f.SetCellValue(summarySheet, "A2", "Generated")
	f.SetCellValue(summarySheet, "B2", summary.GeneratedAt.Format(time.RFC3339))
	f.SetCellValue(summarySheet, "A3", "Overdue tickets")
	f.SetCellValue(summarySheet, "B3", summary.OverdueCount)

	f.SetCellValue(summarySheet, "A5", "Status")
	f.SetCellValue(summarySheet, "B5", "Count")
	row := 6
	for _, status := range statusOrder {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), string(status))
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), summary.CountByStatus[status])
		row++
	}

	const detailSheet = "Tickets"
	if _, err := f.NewSheet(detailSheet); err != nil {
		return nil, err
	}
	headers := []string{"Ticket Number", "Title", "Status", "Priority", "Created", "Due"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(detailSheet, cell, header)
	}
	for i, ticket := range summary.Tickets {
		rowIdx := i + 2
		f.SetCellValue(detailSheet, fmt.Sprintf("A%d", rowIdx), ticket.TicketNumber)
		f.SetCellValue(detailSheet, fmt.Sprintf("B%d", rowIdx), ticket.Title)
		f.SetCellValue(detailSheet, fmt.Sprintf("C%d", rowIdx), string(ticket.Status))
		f.SetCellValue(detailSheet, fmt.Sprintf("D%d", rowIdx), string(ticket.Priority))
		f.SetCellValue(detailSheet, fmt.Sprintf("E%d", rowIdx), ticket.CreatedAt.Format("2006-01-02 15:04"))
		if ticket.DueDate != nil {
			f.SetCellValue(detailSheet, fmt.Sprintf("F%d", rowIdx), ticket.DueDate.Format("2006-01-02 15:04"))
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
