package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/quantra-lab/futuresbot/internal/bracket"
	"github.com/quantra-lab/futuresbot/internal/twap"
	"github.com/quantra-lab/futuresbot/internal/types"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		}).
		Headers(headers...)
}

func renderOrder(title string, order types.Order) string {
	t := newTable("FIELD", "VALUE").
		Row("Symbol", order.Symbol).
		Row("Order ID", strconv.FormatInt(order.OrderID, 10)).
		Row("Client ID", order.ClientOrderID).
		Row("Side", string(order.Side)).
		Row("Type", string(order.Type)).
		Row("Status", string(order.Status)).
		Row("Qty", order.OrigQty.String()).
		Row("Executed", order.ExecutedQty.String()).
		Row("Price", order.Price.String()).
		Row("Stop price", order.StopPrice.String())

	return titleStyle.Render(title) + "\n" + t.Render()
}

func renderOrders(open []types.Order) string {
	if len(open) == 0 {
		return "No open orders"
	}

	t := newTable("SYMBOL", "ID", "SIDE", "TYPE", "STATUS", "QTY", "PRICE", "STOP")
	for _, order := range open {
		t = t.Row(
			order.Symbol,
			strconv.FormatInt(order.OrderID, 10),
			string(order.Side),
			string(order.Type),
			string(order.Status),
			order.OrigQty.String(),
			order.Price.String(),
			order.StopPrice.String(),
		)
	}

	return t.Render()
}

func renderPositions(positions []types.Position) string {
	t := newTable("SYMBOL", "AMOUNT", "ENTRY PRICE", "UNREALIZED PNL")

	open := 0

	for _, position := range positions {
		if position.Amount.IsZero() {
			continue
		}

		open++
		t = t.Row(
			position.Symbol,
			position.Amount.String(),
			position.EntryPrice.String(),
			position.UnrealizedPnL.String(),
		)
	}

	if open == 0 {
		return "No open positions"
	}

	return t.Render()
}

func renderFilters(symbol string, filters types.SymbolFilters) string {
	t := newTable("FILTER", "VALUE").
		Row("Tick size", filters.TickSize.String()).
		Row("Step size", filters.StepSize.String()).
		Row("Min qty", filters.MinQty.String()).
		Row("Min notional", filters.MinNotional.String()).
		Row("Min price", filters.MinPrice.String()).
		Row("Max price", filters.MaxPrice.String())

	return titleStyle.Render(symbol) + "\n" + t.Render()
}

func renderBracketResult(result bracket.Result) string {
	outcome := "race timed out, both legs remain open"

	if result.Detached {
		outcome = "detached, legs left unmonitored"
	} else if winner, err := result.Winner.Take(); err == nil {
		outcome = fmt.Sprintf("winner: %s", winner)
	}

	t := newTable("LEG", "ORDER ID", "STATUS", "QTY", "PRICE", "PLACEMENT").
		Row("entry",
			strconv.FormatInt(result.Entry.OrderID, 10),
			string(result.Entry.Status),
			result.Entry.OrigQty.String(),
			result.Entry.Price.String(),
			"OK").
		Row("take-profit",
			strconv.FormatInt(result.TakeProfit.Order.OrderID, 10),
			string(result.TakeProfit.Order.Status),
			result.TakeProfit.Order.OrigQty.String(),
			result.TakeProfit.Order.Price.String(),
			string(result.TakeProfit.Outcome)).
		Row("stop-loss",
			strconv.FormatInt(result.StopLoss.Order.OrderID, 10),
			string(result.StopLoss.Order.Status),
			result.StopLoss.Order.OrigQty.String(),
			result.StopLoss.Order.Price.String(),
			string(result.StopLoss.Outcome))

	return titleStyle.Render("Bracket "+outcome) + "\n" + t.Render()
}

func renderTwapResult(result twap.Result) string {
	summary := fmt.Sprintf("TWAP done: %d/%d slices of %s",
		result.ExecutedSlices, result.ExpectedSlices, result.SliceQty)

	if len(result.Orders) == 0 {
		return summary
	}

	t := newTable("SLICE", "ORDER ID", "STATUS")
	for i, order := range result.Orders {
		t = t.Row(
			strconv.Itoa(i+1),
			strconv.FormatInt(order.OrderID, 10),
			string(order.Status),
		)
	}

	return titleStyle.Render(summary) + "\n" + t.Render()
}
