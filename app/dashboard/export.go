package dashboard

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"
)

// handleExportXLSX writes one board as a spreadsheet for the operator.
func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	top, err := s.service.AdminTop(mode, exportLimit)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown game mode: "+mode)
		return
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Error("failed to close workbook", slog.Any("error", err))
		}
	}()

	sheet := "Leaderboard"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	headers := []string{"Rank", "Username", "Score", "Distance", "Time", "Station", "Updated"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for row, e := range top {
		values := []any{e.Rank, e.Username, e.Score, e.Distance, e.Time, e.StationID, e.UpdatedAt}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "leaderboard_"+mode+".xlsx"))
	if _, err := f.WriteTo(w); err != nil {
		s.logger.Error("failed to write spreadsheet", slog.Any("error", err))
	}
}

// handleExportChart renders one board's top scores as a bar chart PNG.
func (s *Server) handleExportChart(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	top, err := s.service.AdminTop(mode, 10)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown game mode: "+mode)
		return
	}
	if len(top) == 0 {
		s.writeError(w, http.StatusNotFound, "leaderboard is empty: "+mode)
		return
	}

	bars := make([]chart.Value, 0, len(top))
	for _, e := range top {
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%d. %s", e.Rank, e.Username),
			Value: float64(e.Score),
		})
	}

	graph := chart.BarChart{
		Title:    "Top scores: " + mode,
		Height:   512,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		Bars: bars,
	}

	w.Header().Set("Content-Type", "image/png")
	if err := graph.Render(chart.PNG, w); err != nil {
		s.logger.Error("failed to render chart", slog.Any("error", err))
	}
}
