package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"portal/internal/model"
	"portal/internal/repository"
	"portal/internal/workflow"

	"github.com/google/uuid"
)

// stockLine is one equipment id and the quantity a request wants of it.
type stockLine struct {
	EquipmentID uuid.UUID
	Quantity    int
}

// conflictChecker decides whether a set of lines fits in stock during a window,
// given every other active reservation in the ledger.
type conflictChecker struct {
	equipment    repository.EquipmentRepository
	reservations repository.ReservationRepository
	requests     repository.RequestRepository
	boundary     workflow.Boundary
}

// mergeLines sums duplicate equipment lines, keeping first-seen order.
func mergeLines(lines []stockLine) []stockLine {
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]stockLine, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.EquipmentID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.EquipmentID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

func linesFromItems(items []model.EquipmentRequestItem) []stockLine {
	lines := make([]stockLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, stockLine{EquipmentID: it.EquipmentID, Quantity: it.Quantity})
	}
	return lines
}

// evaluate builds the stock report. With lock set, the equipment rows stay locked until
// the caller's transaction ends, so the answer holds through the commit that follows.
func (c *conflictChecker) evaluate(ctx context.Context, lines []stockLine, w workflow.Window, exclude *uuid.UUID, lock bool) (StockReport, error) {
	lines = mergeLines(lines)
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.EquipmentID)
	}

	var (
		stock []model.Equipment
		err   error
	)
	if lock {
		stock, err = c.equipment.LockForUpdate(ctx, ids)
	} else {
		stock, err = c.equipment.FindByIDs(ctx, ids)
	}
	if err != nil {
		return StockReport{}, fmt.Errorf("failed to load equipment: %w", err)
	}

	byID := make(map[uuid.UUID]model.Equipment, len(stock))
	for _, e := range stock {
		byID[e.ID] = e
	}

	report := StockReport{
		CanApprove: true,
		Items:      make([]StockItemStatus, 0, len(lines)),
		Conflicts:  make([]StockConflict, 0),
		Boundary:   string(c.boundary),
	}

	type pending struct {
		conflict StockConflict
		holders  []model.Reservation
	}
	var shortages []pending
	var holderIDs []uuid.UUID

	for _, line := range lines {
		eq, ok := byID[line.EquipmentID]
		if !ok {
			return StockReport{}, fmt.Errorf("equipment %s: %w", line.EquipmentID, ErrNotFound)
		}

		candidates, err := c.reservations.FindTouching(ctx, eq.ID, w, model.ActiveReservationStatuses, exclude)
		if err != nil {
			return StockReport{}, fmt.Errorf("failed to query reservations: %w", err)
		}

		allocated := 0
		var overlapping []model.Reservation
		for _, r := range candidates {
			if exclude != nil && r.RequestID == *exclude {
				continue
			}
			if !c.boundary.Overlaps(workflow.Window{Start: r.StartTime, End: r.EndTime}, w) {
				continue
			}
			allocated += r.Quantity
			overlapping = append(overlapping, r)
		}

		available := eq.TotalQuantity - allocated
		if available < 0 {
			available = 0
		}

		report.Items = append(report.Items, StockItemStatus{
			EquipmentID:       eq.ID.String(),
			EquipmentName:     eq.Name,
			TotalQuantity:     eq.TotalQuantity,
			RequestedQuantity: line.Quantity,
			AvailableQuantity: available,
		})

		if line.Quantity <= available {
			continue
		}

		report.CanApprove = false
		shortages = append(shortages, pending{
			conflict: StockConflict{
				EquipmentID:       eq.ID.String(),
				EquipmentName:     eq.Name,
				TotalQuantity:     eq.TotalQuantity,
				RequestedQuantity: line.Quantity,
				AvailableQuantity: available,
				Shortage:          line.Quantity - available,
			},
			holders: overlapping,
		})
		for _, r := range overlapping {
			holderIDs = append(holderIDs, r.RequestID)
		}
	}

	if report.CanApprove {
		return report, nil
	}

	summaries, err := c.requests.SummarizeEquipmentRequests(ctx, holderIDs)
	if err != nil {
		return StockReport{}, fmt.Errorf("failed to describe conflicting requests: %w", err)
	}

	for _, p := range shortages {
		p.conflict.ConflictingRequests = make([]ConflictingRequest, 0, len(p.holders))
		for _, r := range p.holders {
			sum := summaries[r.RequestID]
			p.conflict.ConflictingRequests = append(p.conflict.ConflictingRequests, ConflictingRequest{
				RequestID:     r.RequestID.String(),
				RequesterName: sum.RequesterName,
				Status:        r.Status,
				Purpose:       sum.Purpose,
				Quantity:      r.Quantity,
				StartTime:     r.StartTime.Format(time.RFC3339),
				EndTime:       r.EndTime.Format(time.RFC3339),
			})
		}
		sort.SliceStable(p.conflict.ConflictingRequests, func(i, j int) bool {
			return p.conflict.ConflictingRequests[i].StartTime < p.conflict.ConflictingRequests[j].StartTime
		})
		report.Conflicts = append(report.Conflicts, p.conflict)
	}
	report.Suggestion = suggest(report.Conflicts, w)

	return report, nil
}

func suggest(conflicts []StockConflict, w workflow.Window) string {
	parts := make([]string, 0, len(conflicts)+1)
	for _, c := range conflicts {
		parts = append(parts, fmt.Sprintf("%s: %d of %d requested unit(s) available, short by %d.",
			c.EquipmentName, c.AvailableQuantity, c.RequestedQuantity, c.Shortage))
	}
	parts = append(parts, fmt.Sprintf(
		"Reduce the quantities or choose a window outside %s - %s that avoids the listed reservations.",
		w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339)))
	return strings.Join(parts, " ")
}
